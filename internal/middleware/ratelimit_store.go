package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/campuslink/internal/models"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// memoryRateStore provides process-local fixed-window counters. It is concurrency-safe.
type memoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store. Expired counters are pruned lazily.
func NewMemoryRateStore() RateStore {
	return newMemoryRateStore(time.Now)
}

func newMemoryRateStore(clock func() time.Time) *memoryRateStore {
	return &memoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: clock,
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || now.After(counter.windowEnd) {
		s.pruneLocked(now)
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}

	counter.count++
	return counter.count, counter.windowEnd.Sub(now), nil
}

func (s *memoryRateStore) pruneLocked(now time.Time) {
	for key, counter := range s.data {
		if now.After(counter.windowEnd) {
			delete(s.data, key)
		}
	}
}

// databaseRateStore keeps counters in the primary database so limits hold across instances.
type databaseRateStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDatabaseRateStore constructs a rate store backed by the rate_counters table.
func NewDatabaseRateStore(db *gorm.DB) (RateStore, error) {
	if db == nil {
		return nil, errors.New("rate store: database is required")
	}
	return &databaseRateStore{db: db, clock: time.Now}, nil
}

func (s *databaseRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock().UTC()
	var counter models.RateCounter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&counter, "bucket = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Where("expires_at <= ?", now).Delete(&models.RateCounter{}).Error; err != nil {
				return err
			}
			counter = models.RateCounter{Bucket: key, Count: 1, ExpiresAt: now.Add(window)}
			return tx.Create(&counter).Error
		}
		if err != nil {
			return err
		}

		if !now.Before(counter.ExpiresAt) {
			counter.Count = 1
			counter.ExpiresAt = now.Add(window)
		} else {
			counter.Count++
		}
		return tx.Save(&counter).Error
	})
	if err != nil {
		return 0, 0, err
	}

	ttl := counter.ExpiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return counter.Count, ttl, nil
}
