// Package scheduler runs periodic background jobs. The due poller scans the
// due queue of every policy and announces pending reviews as events.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/events"
	"github.com/phrazzld/relearn-api/internal/platform/logger"
	"github.com/phrazzld/relearn-api/internal/store"
)

// DueLister is the due-queue query the poller runs.
type DueLister interface {
	DueItems(ctx context.Context, filter store.DueFilter, limit int, now time.Time) ([]*domain.ReviewState, error)
}

// Config controls the due poller.
type Config struct {
	Interval   time.Duration
	BatchLimit int
}

// policies are polled in this order.
var policies = []domain.PolicyType{
	domain.PolicyContinuousQuality,
	domain.PolicyBinaryComprehension,
	domain.PolicyTieredDifficulty,
}

// DuePoller periodically counts due items per policy.
type DuePoller struct {
	scheduler *gocron.Scheduler
	lister    DueLister
	emitter   events.EventEmitter
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// NewDuePoller creates a poller. emitter may be nil, in which case counts are
// only logged.
func NewDuePoller(lister DueLister, emitter events.EventEmitter, cfg Config, logger *slog.Logger) (*DuePoller, error) {
	if lister == nil {
		return nil, errors.New("due lister cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.Interval)
	}
	if cfg.BatchLimit < 0 {
		return nil, fmt.Errorf("batch limit must be non-negative, got %d", cfg.BatchLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DuePoller{
		scheduler: gocron.NewScheduler(time.UTC),
		lister:    lister,
		emitter:   emitter,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "due_poller")),
	}, nil
}

// Start schedules the poll job and returns immediately. The first poll runs
// at once; overlapping runs are skipped. ctx is passed to every poll and
// should outlive the scheduler.
func (p *DuePoller) Start(ctx context.Context) error {
	_, err := p.scheduler.Every(p.cfg.Interval).SingletonMode().Do(func() {
		if _, err := p.PollOnce(ctx); err != nil {
			p.logger.ErrorContext(ctx, "due poll failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule due poll: %w", err)
	}

	p.scheduler.StartAsync()
	p.logger.InfoContext(ctx, "due poller started",
		slog.Duration("interval", p.cfg.Interval),
		slog.Int("batch_limit", p.cfg.BatchLimit))
	return nil
}

// Stop halts the scheduler. A poll already running finishes on its own.
func (p *DuePoller) Stop() {
	p.scheduler.Stop()
	p.logger.Info("due poller stopped")
}

// PollOnce counts due items for every policy, capped at the batch limit, and
// emits DueItemsAvailable when any are due. Per-policy failures are joined;
// counts for the other policies are still returned.
func (p *DuePoller) PollOnce(ctx context.Context) (map[string]int, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)
	now := p.now().UTC()

	counts := make(map[string]int, len(policies))
	total := 0
	var errs []error

	for _, policy := range policies {
		due, err := p.lister.DueItems(ctx, store.DueFilter{PolicyType: policy}, p.cfg.BatchLimit, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", policy, err))
			continue
		}
		counts[string(policy)] = len(due)
		total += len(due)
	}

	log.DebugContext(ctx, "due poll completed", slog.Int("total", total), slog.Any("counts", counts))

	if total > 0 && p.emitter != nil {
		event, err := events.NewEvent(events.TypeDueItemsAvailable, events.DueItemsAvailable{
			Counts:    counts,
			CheckedAt: now,
		}, now)
		if err == nil {
			err = p.emitter.EmitEvent(ctx, event)
		}
		if err != nil {
			log.WarnContext(ctx, "failed to emit due items event", slog.String("error", err.Error()))
		}
	}

	return counts, errors.Join(errs...)
}
