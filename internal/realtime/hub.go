package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/campuslink/pkg/logger"
	"github.com/charlesng35/campuslink/pkg/metrics"
)

// Message represents a JSON payload delivered to connected clients.
type Message struct {
	Room  string `json:"room,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Envelope is the inbound frame sent by clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Identity describes who opened a connection. A zero Identity is an anonymous connection.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// Authenticated reports whether the connection carries a verified user.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != ""
}

// HandlerFunc processes one inbound event. A returned error is reported back to the sender only.
type HandlerFunc func(c *Client, data json.RawMessage) error

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins permits cross-origin upgrades from the listed origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		for _, origin := range origins {
			if host := hostWithoutPort(origin); host != "" {
				h.allowedOrigins[strings.ToLower(host)] = struct{}{}
			}
		}
	}
}

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// Hub routes events between rooms of connected clients.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	clients  map[*Client]struct{}
	handlers map[string]HandlerFunc

	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}
	sendBuffer     int
	log            *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:          make(map[string]map[*Client]struct{}),
		clients:        make(map[*Client]struct{}),
		handlers:       make(map[string]HandlerFunc),
		allowedOrigins: make(map[string]struct{}),
		sendBuffer:     defaultBufferSize,
		log:            logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Handle registers the handler for an inbound event name, replacing any previous one.
func (h *Hub) Handle(event string, fn HandlerFunc) {
	event = strings.TrimSpace(event)
	if event == "" || fn == nil {
		return
	}
	h.mu.Lock()
	h.handlers[event] = fn
	h.mu.Unlock()
}

// Serve upgrades the HTTP connection and runs the client until it disconnects.
// Authenticated identities are joined to their private room before any event is read.
func (h *Hub) Serve(identity Identity, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn, identity)
	h.register(client)
	if identity.Authenticated() {
		h.Join(client, UserRoom(identity.UserID))
	}

	go client.writeLoop()
	client.readLoop()
}

// Join adds the client to a room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	room = normalizeRoom(room)
	if c == nil || room == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes the client from a room.
func (h *Hub) Leave(c *Client, room string) {
	room = normalizeRoom(room)
	if c == nil || room == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// InRoom reports whether the client is currently a member of the room.
func (h *Hub) InRoom(c *Client, room string) bool {
	room = normalizeRoom(room)
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[normalizeRoom(room)])
}

// ActiveConnections returns the number of registered clients.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// EmitTo delivers an event to every member of a room and returns how many clients accepted it.
// An empty or unknown room is a silent no-op.
func (h *Hub) EmitTo(room, event string, payload any) int {
	room = normalizeRoom(room)
	if room == "" || event == "" {
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return deliverAll(targets, Message{Room: room, Event: event, Data: payload})
}

// BroadcastAll delivers an event to every connected client.
func (h *Hub) BroadcastAll(event string, payload any) int {
	if event == "" {
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return deliverAll(targets, Message{Event: event, Data: payload})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.close()
	}
}

func deliverAll(targets []*Client, msg Message) int {
	delivered := 0
	for _, c := range targets {
		if c.deliver(msg) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) handler(event string) (HandlerFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.handlers[event]
	return fn, ok
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	metrics.RealtimeConnections.Dec()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	delete(c.rooms, room)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := strings.ToLower(hostWithoutPort(origin))
	if originHost == strings.ToLower(hostWithoutPort(r.Host)) || isLoopback(originHost) {
		return true
	}
	_, ok := h.allowedOrigins[originHost]
	return ok
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
