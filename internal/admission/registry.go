// Package admission coordinates login attempts that wait for a live operator decision.
package admission

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRequestTTL bounds how long a login attempt may wait for a decision.
const DefaultRequestTTL = 5 * time.Minute

// Outcome is the terminal state of a request.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeExpired  Outcome = "expired"
)

// Candidate identifies the user whose login is waiting.
type Candidate struct {
	UserID      string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	IPAddress   string `json:"ip_address,omitempty"`
}

// Conn is the waiting connection a result is delivered to.
type Conn interface {
	ID() string
	Send(event string, payload any) bool
}

// Request is a login attempt awaiting a decision. It never leaves process memory.
type Request struct {
	ID        string
	Candidate Candidate
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Conn      Conn
	Outcome   Outcome
}

// Attached reports whether a waiting connection is linked to the request.
func (r Request) Attached() bool { return r.Conn != nil }

// Registry stores pending requests keyed by correlation id.
// Entries past their deadline are invisible to Attach and Resolve until Expire removes them.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Request
	ttl     time.Duration
	now     func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs an empty registry. A non-positive ttl falls back to DefaultRequestTTL.
func NewRegistry(ttl time.Duration, opts ...RegistryOption) *Registry {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	r := &Registry{
		pending: make(map[string]*Request),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the configured request lifetime.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Create stores a pending request holding the already issued token and returns its snapshot.
func (r *Registry) Create(candidate Candidate, token string) Request {
	now := r.now()
	req := &Request{
		ID:        uuid.NewString(),
		Candidate: candidate,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
		Outcome:   OutcomePending,
	}

	r.mu.Lock()
	r.pending[req.ID] = req
	r.mu.Unlock()

	return *req
}

// Attach links a waiting connection to a pending request. Attaching again replaces the
// previous connection. It returns false for unknown, resolved or expired ids.
func (r *Registry) Attach(id string, conn Conn) bool {
	id = strings.TrimSpace(id)
	if id == "" || conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.liveLocked(id)
	if !ok {
		return false
	}
	req.Conn = conn
	return true
}

// Resolve removes a pending request and returns its final snapshot. Only the first call
// for an id succeeds.
func (r *Registry) Resolve(id string, approved bool) (Request, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Request{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.liveLocked(id)
	if !ok {
		return Request{}, false
	}
	delete(r.pending, id)

	req.Outcome = OutcomeRejected
	if approved {
		req.Outcome = OutcomeApproved
	}
	return *req, true
}

// Expire removes every request whose deadline is at or before now.
func (r *Registry) Expire(now time.Time) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Request
	for id, req := range r.pending {
		if req.ExpiresAt.After(now) {
			continue
		}
		delete(r.pending, id)
		req.Outcome = OutcomeExpired
		expired = append(expired, *req)
	}
	sortByCreation(expired)
	return expired
}

// Pending returns live requests ordered by creation time.
func (r *Registry) Pending() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	list := make([]Request, 0, len(r.pending))
	for _, req := range r.pending {
		if req.ExpiresAt.After(now) {
			list = append(list, *req)
		}
	}
	sortByCreation(list)
	return list
}

// Len returns the number of stored requests, including ones awaiting expiry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) liveLocked(id string) (*Request, bool) {
	req, ok := r.pending[id]
	if !ok || !req.ExpiresAt.After(r.now()) {
		return nil, false
	}
	return req, true
}

func sortByCreation(list []Request) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
