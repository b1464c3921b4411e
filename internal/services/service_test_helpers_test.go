package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/campuslink/internal/database/testutil"
	"github.com/charlesng35/campuslink/internal/inbox"
	"github.com/charlesng35/campuslink/internal/models"
)

type emitted struct {
	Room    string
	Event   string
	Payload any
}

// recordingEmitter records emissions and reports delivery only for rooms marked live.
type recordingEmitter struct {
	mu        sync.Mutex
	events    []emitted
	broadcast []emitted
	live      map[string]bool
}

func newRecordingEmitter(liveRooms ...string) *recordingEmitter {
	e := &recordingEmitter{live: make(map[string]bool)}
	for _, room := range liveRooms {
		e.live[room] = true
	}
	return e
}

func (e *recordingEmitter) EmitTo(room, event string, payload any) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{Room: room, Event: event, Payload: payload})
	if e.live[room] {
		return 1
	}
	return 0
}

func (e *recordingEmitter) BroadcastAll(event string, payload any) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcast = append(e.broadcast, emitted{Event: event, Payload: payload})
	return len(e.live)
}

func (e *recordingEmitter) Emitted() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.events...)
}

func (e *recordingEmitter) Broadcasts() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.broadcast...)
}

var errStoreDown = errors.New("store unavailable")

// flakyStore fails inserts for selected recipients.
type flakyStore struct {
	inbox.Store
	failFor map[string]bool
}

func (s *flakyStore) Insert(ctx context.Context, n *models.Notification) error {
	if s.failFor[n.RecipientID] {
		return errStoreDown
	}
	return s.Store.Insert(ctx, n)
}

func newDatabaseStore(t *testing.T, db *gorm.DB) *inbox.DatabaseStore {
	t.Helper()
	store, err := inbox.NewDatabaseStore(db)
	require.NoError(t, err)
	return store
}

func newNotificationFixture(t *testing.T, liveRooms ...string) (*NotificationService, *gorm.DB, *recordingEmitter) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	emitter := newRecordingEmitter(liveRooms...)
	svc, err := NewNotificationService(newDatabaseStore(t, db), emitter)
	require.NoError(t, err)
	return svc, db, emitter
}

func countNotifications(t *testing.T, db *gorm.DB, where ...any) int64 {
	t.Helper()
	var count int64
	query := db.Model(&models.Notification{})
	if len(where) > 0 {
		query = query.Where(where[0], where[1:]...)
	}
	require.NoError(t, query.Count(&count).Error)
	return count
}

func testutilDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}
