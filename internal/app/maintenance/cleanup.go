package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/campuslink/pkg/logger"
)

const (
	defaultSweepSpec     = "@every 15s"
	defaultRetentionSpec = "@daily"
	defaultRetention     = 90 * 24 * time.Hour
)

// AdmissionSweeper expires login requests whose deadline has passed.
type AdmissionSweeper interface {
	ExpireStale(now time.Time) int
}

// InboxPurger deletes read notifications older than the retention window.
type InboxPurger interface {
	PurgeRead(ctx context.Context, retention time.Duration) (int64, error)
}

// Cleaner coordinates background maintenance: expiring unanswered login requests and
// pruning old read notifications.
type Cleaner struct {
	admissions AdmissionSweeper
	inbox      InboxPurger
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger
	retention  time.Duration

	sweepSchedule     string
	retentionSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock passed to the admission sweep.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetention adjusts how long read notifications are kept. Zero or less disables the purge.
func WithRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		cleaner.retention = retention
	}
}

// WithSweepSchedule overrides the cron specification for the admission expiry sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithRetentionSchedule overrides the cron specification for the inbox purge.
func WithRetentionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.retentionSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(admissions AdmissionSweeper, inbox InboxPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		admissions:        admissions,
		inbox:             inbox,
		now:               time.Now,
		retention:         defaultRetention,
		sweepSchedule:     defaultSweepSpec,
		retentionSchedule: defaultRetentionSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the enabled jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.admissions != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() { c.sweepAdmissions() }); err != nil {
			return err
		}
		jobs++
	}

	if c.inbox != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.retentionSchedule, func() {
			if _, err := c.purgeInbox(context.Background()); err != nil {
				c.log.Warn("inbox retention purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	c.cron.Start()
	c.log.Info("maintenance scheduler started", zap.Int("jobs", jobs))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.admissions != nil {
		c.sweepAdmissions()
	}
	if c.inbox != nil && c.retention > 0 {
		if _, err := c.purgeInbox(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Cleaner) sweepAdmissions() int {
	expired := c.admissions.ExpireStale(c.now())
	if expired > 0 {
		c.log.Debug("expired login requests", zap.Int("count", expired))
	}
	return expired
}

func (c *Cleaner) purgeInbox(ctx context.Context) (int64, error) {
	removed, err := c.inbox.PurgeRead(ctx, c.retention)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("purged read notifications", zap.Int64("count", removed))
	}
	return removed, nil
}
