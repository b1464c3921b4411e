package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/campuslink/internal/database/testutil"
	"github.com/charlesng35/campuslink/internal/models"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	clock := &stepClock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	r := gin.New()
	r.Use(RateLimit(newMemoryRateStore(clock.Now), 2, time.Minute))
	r.POST("/login", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.ServeHTTP(w, req)
		return w
	}

	// First two requests should pass
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do().Code)
	}

	// Third request within window should be rate-limited
	w := do()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	clock.Advance(61 * time.Second)

	// After window resets, should pass again
	w = do()
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(brokenStore{}, 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMemoryRateStorePrunesExpiredCounters(t *testing.T) {
	clock := &stepClock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	store := newMemoryRateStore(clock.Now)
	ctx := context.Background()

	_, _, err := store.Increment(ctx, "a", time.Second)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	count, ttl, err := store.Increment(ctx, "b", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, time.Second, ttl)
	require.Len(t, store.data, 1)
}

func TestDatabaseRateStoreSharesWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &stepClock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}

	store, err := NewDatabaseRateStore(db)
	require.NoError(t, err)
	store.(*databaseRateStore).clock = clock.Now
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		count, ttl, err := store.Increment(ctx, "10.0.0.1|/api/auth/login", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
		require.Equal(t, time.Minute, ttl)
	}

	clock.Advance(61 * time.Second)
	count, _, err := store.Increment(ctx, "10.0.0.1|/api/auth/login", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, _, err = store.Increment(ctx, "10.0.0.2|/api/auth/login", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	var rows int64
	require.NoError(t, db.Model(&models.RateCounter{}).Count(&rows).Error)
	require.Equal(t, int64(2), rows)
}

func TestNewDatabaseRateStoreRequiresDB(t *testing.T) {
	_, err := NewDatabaseRateStore(nil)
	require.Error(t, err)
}
