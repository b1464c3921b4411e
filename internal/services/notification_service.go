package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/charlesng35/campuslink/internal/inbox"
	"github.com/charlesng35/campuslink/internal/models"
	"github.com/charlesng35/campuslink/internal/realtime"
	apperrors "github.com/charlesng35/campuslink/pkg/errors"
	"github.com/charlesng35/campuslink/pkg/logger"
	"github.com/charlesng35/campuslink/pkg/metrics"
)

// EventNotificationReceived is pushed to a recipient's private room after a record is persisted.
const EventNotificationReceived = "notification-received"

// Emitter publishes realtime events to a room.
type Emitter interface {
	EmitTo(room, event string, payload any) int
}

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Link        string         `json:"link,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Read        bool           `json:"read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NotifyInput defines the attributes of a single notification.
type NotifyInput struct {
	RecipientID string
	Category    string
	Title       string
	Body        string
	Link        string
	Metadata    map[string]any
}

// ListNotificationsInput defines filters for querying a recipient's inbox.
type ListNotificationsInput struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

// NotificationService persists inbox records and pushes them to live connections.
type NotificationService struct {
	store   inbox.Store
	emitter Emitter
	now     func() time.Time
	log     *zap.Logger
}

// NewNotificationService constructs a NotificationService. The emitter may be nil.
func NewNotificationService(store inbox.Store, emitter Emitter) (*NotificationService, error) {
	if store == nil {
		return nil, errors.New("notification service: store is required")
	}
	return &NotificationService{
		store:   store,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.WithModule("notifications"),
	}, nil
}

// Notify persists one record and then emits it to the recipient's private room.
// The record is stored whether or not the recipient is connected; a storage failure
// returns an error and nothing is emitted.
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	record, err := buildNotification(input)
	if err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("notification service: persist notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(record.Category).Inc()

	dto := mapNotification(*record)
	delivered := 0
	if s.emitter != nil {
		delivered = s.emitter.EmitTo(realtime.UserRoom(record.RecipientID), EventNotificationReceived, dto)
	}
	s.log.Debug("notification stored",
		zap.String("notification_id", dto.ID),
		zap.String("recipient_id", dto.RecipientID),
		zap.String("category", dto.Category),
		zap.Int("live_connections", delivered),
	)
	return &dto, nil
}

// NotifyMany runs one independent Notify per distinct recipient. A failure for one recipient
// neither undoes earlier records nor stops later ones; all failures are returned combined.
func (s *NotificationService) NotifyMany(ctx context.Context, recipientIDs []string, input NotifyInput) ([]NotificationDTO, error) {
	recipients := normaliseIDs(recipientIDs)
	created := make([]NotificationDTO, 0, len(recipients))

	var errs error
	for _, recipientID := range recipients {
		in := input
		in.RecipientID = recipientID
		dto, err := s.Notify(ctx, in)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recipient %s: %w", recipientID, err))
			continue
		}
		created = append(created, *dto)
	}

	if errs != nil {
		s.log.Warn("notification fan-out incomplete",
			zap.Int("recipients", len(recipients)),
			zap.Int("persisted", len(created)),
			zap.Int("failed", len(multierr.Errors(errs))),
		)
	}
	return created, errs
}

// List returns a recipient's notifications ordered by recency.
func (s *NotificationService) List(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)
	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" {
		return nil, apperrors.NewBadRequest("recipient id is required")
	}

	rows, err := s.store.List(ctx, inbox.Query{
		RecipientID: recipientID,
		UnreadOnly:  input.UnreadOnly,
		Limit:       input.Limit,
		Offset:      input.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}
	return mapNotificationRows(rows), nil
}

// CountUnread returns the number of unread notifications for the recipient.
func (s *NotificationService) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.store.CountUnread(ensureContext(ctx), strings.TrimSpace(recipientID))
	if err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// MarkRead flags a notification read. Marking an already read notification returns it unchanged.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID string) (*NotificationDTO, error) {
	row, err := s.store.MarkRead(ensureContext(ctx), recipientID, notificationID, s.now())
	if err != nil {
		return nil, translateInboxError(err, "mark read")
	}
	dto := mapNotification(*row)
	return &dto, nil
}

// MarkAllRead marks all notifications for the recipient as read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	changed, err := s.store.MarkAllRead(ensureContext(ctx), recipientID, s.now())
	if err != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", err)
	}
	return changed, nil
}

// Delete removes a notification owned by the recipient.
func (s *NotificationService) Delete(ctx context.Context, recipientID, notificationID string) error {
	if err := s.store.Delete(ensureContext(ctx), recipientID, notificationID); err != nil {
		return translateInboxError(err, "delete notification")
	}
	return nil
}

// PurgeRead deletes read notifications created more than retention ago.
func (s *NotificationService) PurgeRead(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	removed, err := s.store.PurgeReadBefore(ensureContext(ctx), s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("notification service: purge read notifications: %w", err)
	}
	return removed, nil
}

func buildNotification(input NotifyInput) (*models.Notification, error) {
	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" {
		return nil, apperrors.NewBadRequest("recipient id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = models.CategorySystem
	}

	record := &models.Notification{
		RecipientID: recipientID,
		Category:    category,
		Title:       title,
		Body:        strings.TrimSpace(input.Body),
		Link:        strings.TrimSpace(input.Link),
	}

	if len(input.Metadata) > 0 {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		record.Metadata = datatypes.JSON(data)
	}
	return record, nil
}

func translateInboxError(err error, action string) error {
	if errors.Is(err, inbox.ErrNotFound) {
		return apperrors.ErrNotFound
	}
	return fmt.Errorf("notification service: %s: %w", action, err)
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:          row.ID,
		RecipientID: row.RecipientID,
		Category:    row.Category,
		Title:       row.Title,
		Body:        row.Body,
		Link:        row.Link,
		Metadata:    decodeJSON(row.Metadata),
		Read:        row.Read,
		ReadAt:      row.ReadAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
