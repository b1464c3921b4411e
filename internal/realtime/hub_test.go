package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/campuslink/pkg/metrics"
)

type frame struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(Identity{UserID: r.URL.Query().Get("user")}, w, r)
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if userID != "" {
		u += "?user=" + url.QueryEscape(userID)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func requireSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestRoomNames(t *testing.T) {
	require.Equal(t, "user:42", UserRoom(" 42 "))
	require.Equal(t, "conversation:abc", ConversationRoom("abc"))
	require.Empty(t, UserRoom(""))
	require.Empty(t, ConversationRoom("  "))
	require.NotEqual(t, UserRoom("operators"), BroadcastRoom)
}

func TestEmitToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub()
	require.Zero(t, hub.EmitTo("conversation:nobody", "message-received", map[string]string{"a": "b"}))
	require.Zero(t, hub.EmitTo("", "message-received", nil))
	require.Zero(t, hub.BroadcastAll("notice-published", nil))
	require.Zero(t, hub.RoomSize(BroadcastRoom))
}

func TestAuthenticatedClientJoinsPrivateRoom(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	waitFor(t, func() bool {
		return hub.RoomSize(UserRoom("alice")) == 1 && hub.RoomSize(UserRoom("bob")) == 1
	})

	delivered := hub.EmitTo(UserRoom("alice"), "notification-received", map[string]string{"title": "Leave"})
	require.Equal(t, 1, delivered)

	f := readFrame(t, alice)
	require.Equal(t, "user:alice", f.Room)
	require.Equal(t, "notification-received", f.Event)
	require.JSONEq(t, `{"title":"Leave"}`, string(f.Data))

	requireSilence(t, bob)
}

func TestAnonymousClientHasNoPrivateRoom(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	anon := dial(t, srv, "")
	waitFor(t, func() bool { return hub.ActiveConnections() == 1 })
	require.Zero(t, hub.RoomSize(UserRoom("")))

	require.Equal(t, 1, hub.BroadcastAll("notice-published", map[string]string{"title": "Holiday"}))
	f := readFrame(t, anon)
	require.Equal(t, "notice-published", f.Event)
	require.Empty(t, f.Room)
}

func TestHandlerJoinsConversation(t *testing.T) {
	hub := NewHub()
	hub.Handle("join-conversation", func(c *Client, data json.RawMessage) error {
		var payload struct {
			ConversationID string `json:"conversation_id"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		hub.Join(c, ConversationRoom(payload.ConversationID))
		return nil
	})
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "teacher-1")
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "join-conversation",
		"data":  map[string]string{"conversation_id": "c-9"},
	}))
	waitFor(t, func() bool { return hub.RoomSize(ConversationRoom("c-9")) == 1 })

	require.Equal(t, 1, hub.EmitTo(ConversationRoom("c-9"), "message-received", map[string]string{"text": "hi"}))
	f := readFrame(t, conn)
	require.Equal(t, "conversation:c-9", f.Room)
	require.Equal(t, "message-received", f.Event)
}

func TestHandlerErrorIsReportedToSender(t *testing.T) {
	hub := NewHub()
	hub.Handle("join-broadcast", func(c *Client, _ json.RawMessage) error {
		return errors.New("operator role required")
	})
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "student-1")
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "join-broadcast"}))

	f := readFrame(t, conn)
	require.Equal(t, EventError, f.Event)
	require.JSONEq(t, `{"event":"join-broadcast","message":"operator role required"}`, string(f.Data))
	require.Zero(t, hub.RoomSize(BroadcastRoom))
}

func TestPingPong(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"event": EventPing}))
	f := readFrame(t, conn)
	require.Equal(t, EventPong, f.Event)
}

func TestUnknownEventsAndGarbageAreIgnored(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "u1")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "mystery"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"event": EventPing}))

	f := readFrame(t, conn)
	require.Equal(t, EventPong, f.Event)
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	hub := NewHub()
	hub.Handle("join-broadcast", func(c *Client, _ json.RawMessage) error {
		hub.Join(c, BroadcastRoom)
		return nil
	})
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "admin-1")
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "join-broadcast"}))
	waitFor(t, func() bool { return hub.RoomSize(BroadcastRoom) == 1 })

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return hub.ActiveConnections() == 0 })
	require.Zero(t, hub.RoomSize(BroadcastRoom))
	require.Zero(t, hub.RoomSize(UserRoom("admin-1")))
	require.Zero(t, hub.EmitTo(BroadcastRoom, "admission-requested", nil))
}

func TestLeaveRoom(t *testing.T) {
	hub := NewHub()
	var joined *Client
	hub.Handle("join-broadcast", func(c *Client, _ json.RawMessage) error {
		joined = c
		hub.Join(c, BroadcastRoom)
		return nil
	})
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "admin-2")
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "join-broadcast"}))
	waitFor(t, func() bool { return hub.RoomSize(BroadcastRoom) == 1 })

	require.True(t, hub.InRoom(joined, BroadcastRoom))
	require.Equal(t, "admin-2", joined.Identity().UserID)
	require.NotEmpty(t, joined.ID())

	hub.Leave(joined, BroadcastRoom)
	require.False(t, hub.InRoom(joined, BroadcastRoom))
	require.Zero(t, hub.RoomSize(BroadcastRoom))
	require.True(t, hub.InRoom(joined, UserRoom("admin-2")))
}

func TestClientSendTargetsSingleConnection(t *testing.T) {
	hub := NewHub()
	hub.Handle("hello", func(c *Client, _ json.RawMessage) error {
		c.Send("greeting", map[string]string{"to": c.ID()})
		return nil
	})
	srv := startHubServer(t, hub)

	first := dial(t, srv, "same-user")
	second := dial(t, srv, "same-user")
	waitFor(t, func() bool { return hub.RoomSize(UserRoom("same-user")) == 2 })

	require.NoError(t, first.WriteJSON(map[string]string{"event": "hello"}))
	f := readFrame(t, first)
	require.Equal(t, "greeting", f.Event)
	require.Empty(t, f.Room)

	requireSilence(t, second)
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(WithAllowedOrigins("https://portal.campus.test"))

	req := httptest.NewRequest(http.MethodGet, "http://api.campus.test/ws", nil)
	require.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://api.campus.test:8080")
	require.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://portal.campus.test")
	require.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	require.False(t, hub.checkOrigin(req))
}

func TestBackpressuredClientIsDropped(t *testing.T) {
	hub := NewHub(WithSendBuffer(1))
	srv := startHubServer(t, hub)

	// The dialled socket is never read, so the server write loop stalls once kernel buffers fill.
	_ = dial(t, srv, "stalled")
	room := UserRoom("stalled")
	waitFor(t, func() bool { return hub.RoomSize(room) == 1 })

	droppedBefore := droppedClients(t)
	payload := strings.Repeat("x", 1<<20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.EmitTo(room, "bulk", payload)
				if hub.ActiveConnections() == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return hub.ActiveConnections() == 0 })
	require.Zero(t, hub.RoomSize(room))
	require.Zero(t, hub.EmitTo(room, "bulk", "late"))
	require.GreaterOrEqual(t, droppedClients(t), droppedBefore+1)
}

func droppedClients(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.RealtimeDropped.Write(&m))
	return m.GetCounter().GetValue()
}
