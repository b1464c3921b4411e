package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/campuslink/internal/admission"
	testutil "github.com/charlesng35/campuslink/internal/database/testutil"
	"github.com/charlesng35/campuslink/internal/inbox"
	"github.com/charlesng35/campuslink/internal/models"
	"github.com/charlesng35/campuslink/internal/services"
)

type waitingConn struct {
	mu     sync.Mutex
	events []string
}

func (c *waitingConn) ID() string { return "conn-1" }

func (c *waitingConn) Send(event string, _ any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

type failingPurger struct{}

func (failingPurger) PurgeRead(context.Context, time.Duration) (int64, error) {
	return 0, errors.New("store offline")
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func TestCleanerRunOnceExpiresRequestsAndPurgesInbox(t *testing.T) {
	clock := &fixedClock{current: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}

	registry := admission.NewRegistry(time.Minute, admission.WithClock(clock.Now))
	coordinator := admission.NewCoordinator(registry, nil)
	ticket := coordinator.Begin(admission.Candidate{UserID: "staff-1", Role: models.RoleStaff}, "token")
	conn := &waitingConn{}
	require.True(t, coordinator.Link(ticket.RequestID, conn))

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := inbox.NewDatabaseStore(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(store, nil)
	require.NoError(t, err)

	ctx := context.Background()
	old, err := notifications.Notify(ctx, services.NotifyInput{RecipientID: "u1", Title: "Old"})
	require.NoError(t, err)
	_, err = notifications.MarkRead(ctx, "u1", old.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().UTC().Add(-48*time.Hour)).Error)
	_, err = notifications.Notify(ctx, services.NotifyInput{RecipientID: "u1", Title: "Fresh"})
	require.NoError(t, err)

	clock.current = clock.current.Add(2 * time.Minute)
	cleaner := NewCleaner(coordinator, notifications,
		WithNow(clock.Now),
		WithRetention(24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, cleaner.RunOnce(ctx))

	require.Zero(t, registry.Len())
	require.Equal(t, []string{admission.EventResult}, conn.events)

	var remaining []models.Notification
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "Fresh", remaining[0].Title)
}

func TestCleanerRunOnceReportsPurgeFailure(t *testing.T) {
	cleaner := NewCleaner(nil, failingPurger{})
	err := cleaner.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "store offline")
}

func TestCleanerRetentionDisabledSkipsPurge(t *testing.T) {
	cleaner := NewCleaner(nil, failingPurger{}, WithRetention(0))
	require.NoError(t, cleaner.RunOnce(context.Background()))
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	registry := admission.NewRegistry(time.Minute)
	cleaner := NewCleaner(admission.NewCoordinator(registry, nil), nil, WithSweepSchedule("not a schedule"))
	require.Error(t, cleaner.Start())
}

func TestCleanerStartAndStop(t *testing.T) {
	registry := admission.NewRegistry(time.Minute)
	cleaner := NewCleaner(admission.NewCoordinator(registry, nil), failingPurger{},
		WithSweepSchedule("@every 1h"),
		WithRetentionSchedule("@every 1h"),
	)
	require.NoError(t, cleaner.Start())
	require.Len(t, cleaner.cron.Entries(), 2)

	select {
	case <-cleaner.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestCleanerWithoutJobsDoesNotStart(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NoError(t, cleaner.Start())
	require.Empty(t, cleaner.cron.Entries())
	require.NoError(t, cleaner.RunOnce(context.Background()))
}
