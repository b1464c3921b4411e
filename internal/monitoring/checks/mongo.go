package checks

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/charlesng35/campuslink/internal/monitoring"
)

// MongoDB returns a probe that pings the document store backing the inbox.
func MongoDB(client *mongo.Client, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("inbox_mongodb", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "mongodb client not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()
		return monitoring.ResultFromError(client.Ping(probeCtx, readpref.Primary()), time.Since(start))
	})
}
