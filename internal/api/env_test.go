package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/campuslink/internal/admission"
	"github.com/charlesng35/campuslink/internal/app"
	iauth "github.com/charlesng35/campuslink/internal/auth"
	"github.com/charlesng35/campuslink/internal/database/testutil"
	"github.com/charlesng35/campuslink/internal/inbox"
	"github.com/charlesng35/campuslink/internal/middleware"
	"github.com/charlesng35/campuslink/internal/monitoring"
	"github.com/charlesng35/campuslink/internal/monitoring/checks"
	"github.com/charlesng35/campuslink/internal/realtime"
	"github.com/charlesng35/campuslink/pkg/response"
)

type testEnv struct {
	t           *testing.T
	db          *gorm.DB
	cfg         *app.Config
	router      *gin.Engine
	server      *httptest.Server
	hub         *realtime.Hub
	coordinator *admission.Coordinator
}

func testConfig() *app.Config {
	return &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "router-suite-secret-key-32-bytes!!",
				Issuer: "campuslink-test",
				TTL:    time.Hour,
			},
			RateLimit: app.RateLimitSettings{Requests: 100, Window: time.Minute},
		},
		Admission: app.AdmissionConfig{
			Enabled:       true,
			GatedRoles:    []string{"staff"},
			OperatorRoles: []string{"admin"},
			RequestTTL:    time.Minute,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func newTestEnv(t *testing.T, mutate ...func(*app.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store, err := inbox.NewDatabaseStore(db)
	require.NoError(t, err)

	hub := realtime.NewHub()
	coordinator := admission.NewCoordinator(admission.NewRegistry(cfg.Admission.TTL()), hub)

	svc, err := NewServices(cfg, db, jwtSvc, store, hub, coordinator)
	require.NoError(t, err)

	health := monitoring.NewHealthManager(
		checks.Database(db, time.Second),
		checks.Realtime(hub, coordinator.Registry(), func() int { return hub.RoomSize(realtime.BroadcastRoom) }),
	)

	router, err := NewRouter(Dependencies{
		Config:      cfg,
		JWT:         jwtSvc,
		Hub:         hub,
		Coordinator: coordinator,
		Services:    svc,
		Health:      health,
		RateStore:   middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})

	return &testEnv{
		t:           t,
		db:          db,
		cfg:         cfg,
		router:      router,
		server:      server,
		hub:         hub,
		coordinator: coordinator,
	}
}

type apiResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

func (e *testEnv) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeInto[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

type loginPayload struct {
	ApprovalRequired bool      `json:"approval_required"`
	Token            string    `json:"token"`
	RequestID        string    `json:"request_id"`
	ExpiresAt        time.Time `json:"expires_at"`
	User             *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"user"`
}

func (e *testEnv) login(username, password string) (int, loginPayload) {
	e.t.Helper()
	w := e.request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": username,
		"password":   password,
	}, "")
	resp := decode(e.t, w)
	if !resp.Success {
		return w.Code, loginPayload{}
	}
	return w.Code, decodeInto[loginPayload](e.t, resp.Data)
}

func (e *testEnv) mustLogin(username, password string) string {
	e.t.Helper()
	status, payload := e.login(username, password)
	require.Equal(e.t, http.StatusOK, status)
	require.NotEmpty(e.t, payload.Token)
	return payload.Token
}

type wsFrame struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (e *testEnv) dial(token string) *websocket.Conn {
	e.t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// expectEvent reads frames until one with the given event arrives, skipping others.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) wsFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
}
