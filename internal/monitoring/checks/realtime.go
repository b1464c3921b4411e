package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/campuslink/internal/monitoring"
)

// RealtimeObserver exposes the hub state the realtime probe reports.
type RealtimeObserver interface {
	ActiveConnections() int
}

// PendingObserver exposes the number of login requests waiting for a decision.
type PendingObserver interface {
	Len() int
}

// Realtime reports live connection and pending admission counts. It is degraded when the
// hub is missing and requests are waiting with no operator connected.
func Realtime(hub RealtimeObserver, pending PendingObserver, operators func() int) monitoring.Check {
	return monitoring.NewCheck("realtime", func(context.Context) monitoring.ProbeResult {
		start := time.Now()
		if hub == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "realtime hub unavailable"}
		}

		waiting := 0
		if pending != nil {
			waiting = pending.Len()
		}
		online := 0
		if operators != nil {
			online = operators()
		}

		status := monitoring.StatusUp
		if waiting > 0 && online == 0 {
			status = monitoring.StatusDegraded
		}
		return monitoring.ProbeResult{
			Status:   status,
			Details:  fmt.Sprintf("connections=%d operators=%d pending=%d", hub.ActiveConnections(), online, waiting),
			Duration: time.Since(start),
		}
	})
}
