package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/campuslink/internal/models"
)

// DatabaseStore keeps notifications in the relational database through gorm.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a gorm-backed Store.
func NewDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("inbox: db is required")
	}
	return &DatabaseStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *DatabaseStore) Insert(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("inbox: notification is nil")
	}
	stamp(n, s.now())
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("inbox: insert notification: %w", err)
	}
	return nil
}

func (s *DatabaseStore) Get(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	var row models.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inbox: load notification: %w", err)
	}
	return &row, nil
}

func (s *DatabaseStore) List(ctx context.Context, q Query) ([]models.Notification, error) {
	q = q.Normalised()

	tx := s.db.WithContext(ctx).Where("recipient_id = ?", q.RecipientID)
	if q.UnreadOnly {
		tx = tx.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := tx.Order("created_at DESC").Order("id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("inbox: list notifications: %w", err)
	}
	return rows, nil
}

func (s *DatabaseStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("inbox: count unread: %w", err)
	}
	return count, nil
}

func (s *DatabaseStore) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*models.Notification, error) {
	row, err := s.Get(ctx, recipientID, id)
	if err != nil {
		return nil, err
	}
	if row.Read {
		return row, nil
	}

	at = at.UTC()
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]any{
			"is_read":    true,
			"read_at":    at,
			"updated_at": at,
		}).Error; err != nil {
		return nil, fmt.Errorf("inbox: mark read: %w", err)
	}

	row.Read = true
	row.ReadAt = &at
	row.UpdatedAt = at
	return row, nil
}

func (s *DatabaseStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	at = at.UTC()
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]any{
			"is_read":    true,
			"read_at":    at,
			"updated_at": at,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("inbox: mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, recipientID, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("inbox: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff.UTC()).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("inbox: purge read notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}
