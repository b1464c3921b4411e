package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCORSWithoutOriginsAllowsAny(t *testing.T) {
	r := newCORSRouter()

	preflight := corsRequest(r, http.MethodOptions, "https://portal.campus.test")
	require.Equal(t, http.StatusNoContent, preflight.Code)
	require.Equal(t, "*", preflight.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, preflight.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	require.Contains(t, preflight.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	require.Equal(t, "600", preflight.Header().Get("Access-Control-Max-Age"))

	w := corsRequest(r, http.MethodGet, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func newCORSRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(origins...))
	r.GET("/resource", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func corsRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/resource", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORSAllowListEchoesMatchingOrigin(t *testing.T) {
	r := newCORSRouter(" https://Portal.Campus.test/ ")

	w := corsRequest(r, http.MethodGet, "https://portal.campus.test")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://portal.campus.test", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))

	preflight := corsRequest(r, http.MethodOptions, "https://portal.campus.test")
	require.Equal(t, http.StatusNoContent, preflight.Code)
	require.Equal(t, "https://portal.campus.test", preflight.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowListRejectsUnknownOrigin(t *testing.T) {
	r := newCORSRouter("https://portal.campus.test")

	w := corsRequest(r, http.MethodGet, "https://evil.example")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))

	w = corsRequest(r, http.MethodGet, "")
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardEntryAllowsAnyOrigin(t *testing.T) {
	r := newCORSRouter("https://portal.campus.test", "*")

	w := corsRequest(r, http.MethodGet, "https://elsewhere.example")
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, w.Header().Get("Vary"))
}
