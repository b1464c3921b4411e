package admission

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/campuslink/internal/realtime"
	"github.com/charlesng35/campuslink/pkg/logger"
	"github.com/charlesng35/campuslink/pkg/metrics"
)

// Outbound event names.
const (
	EventResult    = "admission-result"
	EventRequested = "admission-requested"
	EventResolved  = "admission-resolved"
)

const (
	messageRejected = "login request was rejected"
	messageExpired  = "login request expired"
)

// Emitter publishes events to a room.
type Emitter interface {
	EmitTo(room, event string, payload any) int
}

// Result is the payload of admission-result.
type Result struct {
	Success bool       `json:"success"`
	Token   string     `json:"token,omitempty"`
	User    *Candidate `json:"user,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Ticket is what a gated login receives instead of a token.
type Ticket struct {
	RequestID string    `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PendingView is the operator-facing description of a request. It never carries the token.
type PendingView struct {
	RequestID string    `json:"request_id"`
	Candidate Candidate `json:"candidate"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attached  bool      `json:"attached"`
}

// Resolution is the payload of admission-resolved.
type Resolution struct {
	RequestID string  `json:"request_id"`
	Outcome   Outcome `json:"outcome"`
	Delivered bool    `json:"delivered"`
	DecidedBy string  `json:"decided_by,omitempty"`
}

// Coordinator drives requests from creation through a single decision or expiry.
type Coordinator struct {
	registry   *Registry
	emitter    Emitter
	onApproved func(Candidate)
	log        *zap.Logger
}

// NewCoordinator wires a coordinator to its registry and event emitter.
func NewCoordinator(registry *Registry, emitter Emitter) *Coordinator {
	return &Coordinator{
		registry: registry,
		emitter:  emitter,
		log:      logger.WithModule("admission"),
	}
}

// OnApproved registers a callback run after an approval reaches the waiting connection.
// Call it during wiring, before requests are decided.
func (c *Coordinator) OnApproved(fn func(Candidate)) { c.onApproved = fn }

// Registry exposes the underlying registry.
func (c *Coordinator) Registry() *Registry { return c.registry }

// Begin parks a prepared token behind a new request and announces it to operators.
func (c *Coordinator) Begin(candidate Candidate, token string) Ticket {
	req := c.registry.Create(candidate, token)
	metrics.AdmissionPending.Set(float64(c.registry.Len()))

	c.emit(realtime.BroadcastRoom, EventRequested, viewOf(req))
	c.log.Info("login awaiting approval",
		zap.String("request_id", req.ID),
		zap.String("user_id", candidate.UserID),
		zap.String("role", candidate.Role),
	)
	return Ticket{RequestID: req.ID, ExpiresAt: req.ExpiresAt}
}

// Link attaches the waiting connection. Unknown ids are ignored.
func (c *Coordinator) Link(requestID string, conn Conn) bool {
	if !c.registry.Attach(requestID, conn) {
		c.log.Debug("link ignored", zap.String("request_id", requestID))
		return false
	}
	c.log.Debug("waiting connection linked",
		zap.String("request_id", requestID),
		zap.String("conn_id", conn.ID()),
	)
	return true
}

// Decide resolves a request and forwards the outcome to the linked connection, if any.
// Only the first decision for an id has any effect.
func (c *Coordinator) Decide(requestID string, approved bool, operatorID string) (Resolution, bool) {
	req, ok := c.registry.Resolve(requestID, approved)
	if !ok {
		c.log.Debug("decision ignored", zap.String("request_id", requestID))
		return Resolution{}, false
	}

	result := Result{Success: false, Message: messageRejected}
	if approved {
		user := req.Candidate
		result = Result{Success: true, Token: req.Token, User: &user}
	}

	res := c.settle(req, result, operatorID)
	if approved && res.Delivered && c.onApproved != nil {
		c.onApproved(req.Candidate)
	}
	c.log.Info("login request decided",
		zap.String("request_id", req.ID),
		zap.String("outcome", string(req.Outcome)),
		zap.Bool("delivered", res.Delivered),
		zap.String("operator_id", operatorID),
	)
	return res, true
}

// ExpireStale removes requests past their deadline and tells linked connections.
func (c *Coordinator) ExpireStale(now time.Time) int {
	expired := c.registry.Expire(now)
	for _, req := range expired {
		res := c.settle(req, Result{Success: false, Message: messageExpired}, "")
		c.log.Info("login request expired",
			zap.String("request_id", req.ID),
			zap.Bool("delivered", res.Delivered),
		)
	}
	return len(expired)
}

// Pending lists live requests for operators.
func (c *Coordinator) Pending() []PendingView {
	reqs := c.registry.Pending()
	views := make([]PendingView, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, viewOf(req))
	}
	return views
}

func (c *Coordinator) settle(req Request, result Result, operatorID string) Resolution {
	delivered := false
	if req.Conn != nil {
		delivered = req.Conn.Send(EventResult, result)
	}

	metrics.AdmissionPending.Set(float64(c.registry.Len()))
	metrics.AdmissionOutcomes.WithLabelValues(string(req.Outcome), strconv.FormatBool(delivered)).Inc()

	res := Resolution{
		RequestID: req.ID,
		Outcome:   req.Outcome,
		Delivered: delivered,
		DecidedBy: strings.TrimSpace(operatorID),
	}
	c.emit(realtime.BroadcastRoom, EventResolved, res)
	return res
}

func (c *Coordinator) emit(room, event string, payload any) {
	if c.emitter == nil {
		return
	}
	c.emitter.EmitTo(room, event, payload)
}

func viewOf(req Request) PendingView {
	return PendingView{
		RequestID: req.ID,
		Candidate: req.Candidate,
		CreatedAt: req.CreatedAt,
		ExpiresAt: req.ExpiresAt,
		Attached:  req.Attached(),
	}
}
