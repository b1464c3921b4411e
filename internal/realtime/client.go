package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/campuslink/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 64
)

// Inbound event names handled by the client itself.
const (
	EventPing  = "ping"
	EventPong  = "pong"
	EventError = "error"
)

// Client is one websocket connection registered with the hub.
type Client struct {
	id       string
	identity Identity
	hub      *Hub
	socket   *websocket.Conn

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	mu     sync.Mutex
	send   chan Message
	closed bool
	once   sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, identity Identity) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		hub:      hub,
		socket:   conn,
		rooms:    make(map[string]struct{}),
		send:     make(chan Message, hub.sendBuffer),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// Identity returns the identity the connection was opened with.
func (c *Client) Identity() Identity { return c.identity }

// Send queues an event for this connection only. It reports false when the client is gone
// or was dropped because its queue is full.
func (c *Client) Send(event string, payload any) bool {
	return c.deliver(Message{Event: event, Data: payload})
}

func (c *Client) deliver(msg Message) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
		return true
	default:
	}
	c.mu.Unlock()

	c.hub.log.Warn("dropping backpressured client",
		zap.String("client_id", c.id),
		zap.String("user_id", c.identity.UserID),
	)
	metrics.RealtimeDropped.Inc()
	c.close()
	return false
}

func (c *Client) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.hub.log.Debug("invalid frame", zap.String("client_id", c.id), zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	event := strings.TrimSpace(env.Event)
	if event == EventPing {
		c.Send(EventPong, nil)
		return
	}

	fn, ok := c.hub.handler(event)
	if !ok {
		c.hub.log.Debug("unhandled event", zap.String("client_id", c.id), zap.String("event", event))
		return
	}
	if err := fn(c, env.Data); err != nil {
		c.Send(EventError, map[string]string{"event": event, "message": err.Error()})
	}
}

func (c *Client) writeLoop() {
	defer func() {
		_ = c.socket.Close()
		c.close()
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		c.hub.unregister(c)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		// The write loop drains the queue, sends the close frame and closes the socket.
	})
}
