package admission

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var staffCandidate = Candidate{UserID: "u-1", Username: "jbursar", DisplayName: "J. Bursar", Role: "staff"}

func TestRegistryUnknownIDsAreNotFound(t *testing.T) {
	reg := NewRegistry(time.Minute)
	conn := newFakeConn("c1")

	require.False(t, reg.Attach("never-created", conn))
	_, ok := reg.Resolve("never-created", true)
	require.False(t, ok)
	require.False(t, reg.Attach("", conn))
	_, ok = reg.Resolve("", false)
	require.False(t, ok)

	require.Zero(t, reg.Len())
	require.Empty(t, conn.Events())
}

func TestRegistryCreateAssignsIDAndDeadline(t *testing.T) {
	clock := newManualClock()
	reg := NewRegistry(2*time.Minute, WithClock(clock.Now))

	a := reg.Create(staffCandidate, "token-a")
	b := reg.Create(staffCandidate, "token-b")

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, OutcomePending, a.Outcome)
	require.Equal(t, clock.Now().Add(2*time.Minute), a.ExpiresAt)
	require.False(t, a.Attached())
	require.Equal(t, 2, reg.Len())
	require.Equal(t, 2*time.Minute, reg.TTL())
}

func TestRegistryDefaultTTL(t *testing.T) {
	require.Equal(t, DefaultRequestTTL, NewRegistry(0).TTL())
}

func TestRegistryResolveIsDestructiveAndSingleShot(t *testing.T) {
	reg := NewRegistry(time.Minute)
	req := reg.Create(staffCandidate, "token")
	conn := newFakeConn("c1")
	require.True(t, reg.Attach(req.ID, conn))

	resolved, ok := reg.Resolve(req.ID, true)
	require.True(t, ok)
	require.Equal(t, OutcomeApproved, resolved.Outcome)
	require.Equal(t, "token", resolved.Token)
	require.Same(t, conn, resolved.Conn)
	require.Zero(t, reg.Len())

	_, ok = reg.Resolve(req.ID, false)
	require.False(t, ok)
	require.False(t, reg.Attach(req.ID, newFakeConn("late")))
}

func TestRegistryRejectOutcome(t *testing.T) {
	reg := NewRegistry(time.Minute)
	req := reg.Create(staffCandidate, "token")

	resolved, ok := reg.Resolve(req.ID, false)
	require.True(t, ok)
	require.Equal(t, OutcomeRejected, resolved.Outcome)
	require.False(t, resolved.Attached())
}

func TestRegistryReattachReplacesConnection(t *testing.T) {
	reg := NewRegistry(time.Minute)
	req := reg.Create(staffCandidate, "token")
	first := newFakeConn("first")
	second := newFakeConn("second")

	require.True(t, reg.Attach(req.ID, first))
	require.True(t, reg.Attach(req.ID, second))
	require.False(t, reg.Attach(req.ID, nil))

	resolved, ok := reg.Resolve(req.ID, true)
	require.True(t, ok)
	require.Same(t, second, resolved.Conn)
}

func TestRegistryExpiredEntriesAreInvisible(t *testing.T) {
	clock := newManualClock()
	reg := NewRegistry(time.Minute, WithClock(clock.Now))
	old := reg.Create(staffCandidate, "old")
	clock.Advance(30 * time.Second)
	fresh := reg.Create(staffCandidate, "fresh")
	clock.Advance(30 * time.Second)

	require.False(t, reg.Attach(old.ID, newFakeConn("c")))
	_, ok := reg.Resolve(old.ID, true)
	require.False(t, ok)

	pending := reg.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, fresh.ID, pending[0].ID)
	require.Equal(t, 2, reg.Len())

	expired := reg.Expire(clock.Now())
	require.Len(t, expired, 1)
	require.Equal(t, old.ID, expired[0].ID)
	require.Equal(t, OutcomeExpired, expired[0].Outcome)
	require.Equal(t, 1, reg.Len())

	require.Empty(t, reg.Expire(clock.Now()))
}

func TestRegistryPendingIsOrdered(t *testing.T) {
	clock := newManualClock()
	reg := NewRegistry(time.Hour, WithClock(clock.Now))

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, reg.Create(staffCandidate, "t").ID)
		clock.Advance(time.Second)
	}

	pending := reg.Pending()
	require.Len(t, pending, 4)
	for i, req := range pending {
		require.Equal(t, ids[i], req.ID)
	}
}

func TestRegistryConcurrentResolveHasOneWinner(t *testing.T) {
	reg := NewRegistry(time.Minute)
	req := reg.Create(staffCandidate, "token")
	conn := newFakeConn("waiting")

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func(approved bool) {
			defer wg.Done()
			if _, ok := reg.Resolve(req.ID, approved); ok {
				wins.Add(1)
			}
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			reg.Attach(req.ID, conn)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Zero(t, reg.Len())
}
