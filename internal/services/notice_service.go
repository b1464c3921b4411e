package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/charlesng35/campuslink/internal/models"
	apperrors "github.com/charlesng35/campuslink/pkg/errors"
)

// EventNoticePublished is broadcast to every connection when a notice goes out.
const EventNoticePublished = "notice-published"

// Broadcaster publishes an event to every connected client.
type Broadcaster interface {
	BroadcastAll(event string, payload any) int
}

// PublishNoticeInput describes a notice and its audience. With no recipients and no roles
// every active user is addressed.
type PublishNoticeInput struct {
	Title        string
	Body         string
	Link         string
	RecipientIDs []string
	Roles        []string
	PublishedBy  string
}

// NoticeSummary is the broadcast payload.
type NoticeSummary struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Link        string    `json:"link,omitempty"`
	PublishedBy string    `json:"published_by,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NoticeResult reports how the fan-out went.
type NoticeResult struct {
	Recipients int `json:"recipients"`
	Persisted  int `json:"persisted"`
	Failed     int `json:"failed"`
}

// NoticeService fans a notice out to recipient inboxes.
type NoticeService struct {
	notifications *NotificationService
	users         *UserService
	broadcaster   Broadcaster
	now           func() time.Time
}

// NewNoticeService constructs a NoticeService. The broadcaster may be nil.
func NewNoticeService(notifications *NotificationService, users *UserService, broadcaster Broadcaster) (*NoticeService, error) {
	if notifications == nil || users == nil {
		return nil, errors.New("notice service: notification and user services are required")
	}
	return &NoticeService{
		notifications: notifications,
		users:         users,
		broadcaster:   broadcaster,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Publish persists one notification per recipient and broadcasts a summary. Per-recipient
// failures are returned combined alongside the result; records already stored are kept.
func (s *NoticeService) Publish(ctx context.Context, input PublishNoticeInput) (*NoticeResult, error) {
	ctx = ensureContext(ctx)
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	recipients := normaliseIDs(input.RecipientIDs)
	if len(input.Roles) > 0 || len(recipients) == 0 {
		byRole, err := s.users.ActiveIDs(ctx, input.Roles)
		if err != nil {
			return nil, err
		}
		recipients = normaliseIDs(append(recipients, byRole...))
	}

	created, err := s.notifications.NotifyMany(ctx, recipients, NotifyInput{
		Category: models.CategoryNotice,
		Title:    title,
		Body:     input.Body,
		Link:     input.Link,
		Metadata: map[string]any{"published_by": input.PublishedBy},
	})

	result := &NoticeResult{
		Recipients: len(recipients),
		Persisted:  len(created),
		Failed:     len(multierr.Errors(err)),
	}

	if s.broadcaster != nil && result.Persisted > 0 {
		s.broadcaster.BroadcastAll(EventNoticePublished, NoticeSummary{
			Title:       title,
			Body:        strings.TrimSpace(input.Body),
			Link:        strings.TrimSpace(input.Link),
			PublishedBy: input.PublishedBy,
			PublishedAt: s.now(),
		})
	}
	return result, err
}
