package admission

import (
	"sync"
	"time"
)

type sentEvent struct {
	Event   string
	Payload any
}

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []sentEvent
	gone   bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return false
	}
	c.events = append(c.events, sentEvent{Event: event, Payload: payload})
	return true
}

func (c *fakeConn) Events() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentEvent(nil), c.events...)
}

func (c *fakeConn) disconnect() {
	c.mu.Lock()
	c.gone = true
	c.mu.Unlock()
}

type roomEvent struct {
	Room    string
	Event   string
	Payload any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []roomEvent
}

func (e *fakeEmitter) EmitTo(room, event string, payload any) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, roomEvent{Room: room, Event: event, Payload: payload})
	return 1
}

func (e *fakeEmitter) Events() []roomEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]roomEvent(nil), e.events...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
