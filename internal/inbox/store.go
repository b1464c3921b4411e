// Package inbox persists recipient-owned notification records. It is the source of truth
// for notification delivery; realtime pushes only shorten the time to display.
package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/campuslink/internal/models"
)

// ErrNotFound is returned when a notification does not exist or belongs to another recipient.
var ErrNotFound = errors.New("inbox: notification not found")

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

// Query filters a recipient's inbox.
type Query struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

// Normalised clamps paging values to the supported range.
func (q Query) Normalised() Query {
	if q.Limit <= 0 || q.Limit > maxListLimit {
		q.Limit = defaultListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Store is the persistence contract for notification records.
type Store interface {
	// Insert persists a new record, assigning ID and timestamps when absent.
	Insert(ctx context.Context, n *models.Notification) error
	// Get loads a record owned by the recipient.
	Get(ctx context.Context, recipientID, id string) (*models.Notification, error)
	// List returns records newest first.
	List(ctx context.Context, q Query) ([]models.Notification, error)
	// CountUnread returns the number of unread records for the recipient.
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	// MarkRead flags a record read. Records that are already read are returned unchanged.
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*models.Notification, error)
	// MarkAllRead flags every unread record of the recipient and returns how many changed.
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	// Delete removes a record owned by the recipient.
	Delete(ctx context.Context, recipientID, id string) error
	// PurgeReadBefore removes read records created before the cutoff.
	PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func stamp(n *models.Notification, now time.Time) {
	n.EnsureID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = n.CreatedAt
	if !n.Read {
		n.ReadAt = nil
	}
}
