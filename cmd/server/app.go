package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/relearn-api/internal/config"
	"github.com/phrazzld/relearn-api/internal/domain/selection"
	"github.com/phrazzld/relearn-api/internal/domain/srs"
	"github.com/phrazzld/relearn-api/internal/events"
	"github.com/phrazzld/relearn-api/internal/platform/postgres"
	redisstore "github.com/phrazzld/relearn-api/internal/platform/redis"
	"github.com/phrazzld/relearn-api/internal/scheduler"
	"github.com/phrazzld/relearn-api/internal/service/review"
	"github.com/phrazzld/relearn-api/internal/store"
)

// application holds the shared dependencies and releases them on shutdown.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	service *review.Service
	poller  *scheduler.DuePoller

	// closers run in reverse order during cleanup.
	closers []func() error
}

// newApplication connects the configured store backend and wires the review
// service, event emitter and due poller.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	items, states, err := app.setupStores(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	engine, err := newEngine(cfg.Review)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(events.NewLogHandler(logger))

	app.service, err = review.NewService(items, states, engine, selection.New(nil), emitter, review.Options{
		MaxConflictRetries: cfg.Review.MaxConflictRetries,
		RetryBaseDelay:     cfg.Review.RetryBaseDelay,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create review service: %w", err)
	}

	if cfg.Scheduler.Enabled {
		app.poller, err = scheduler.NewDuePoller(app.service, emitter, scheduler.Config{
			Interval:   cfg.Scheduler.DuePollInterval,
			BatchLimit: cfg.Scheduler.DueBatchLimit,
		}, logger)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to create due poller: %w", err)
		}
	}

	return app, nil
}

// setupStores connects the configured backend. Postgres schemas are migrated
// to the latest version on startup.
func (app *application) setupStores(ctx context.Context) (store.ItemStore, store.ReviewStateStore, error) {
	switch app.config.Store.Backend {
	case "postgres":
		db, err := setupDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return nil, nil, err
		}
		app.closers = append(app.closers, db.Close)

		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			return nil, nil, err
		}
		return postgres.NewItemStore(db, app.logger), postgres.NewReviewStateStore(db, app.logger), nil

	case "redis":
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     app.config.Redis.Addr,
			Password: app.config.Redis.Password,
			DB:       app.config.Redis.DB,
			PoolSize: app.config.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		app.logger.Info("redis connection established", slog.Int("db", app.config.Redis.DB))

		s := redisstore.NewStore(client, app.logger)
		return s, s, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", app.config.Store.Backend)
	}
}

// newEngine builds the policy engine from the review settings; zero values
// keep the policy defaults.
func newEngine(cfg config.ReviewConfig) (*srs.Engine, error) {
	params, err := srs.NewParams(srs.ParamsConfig{
		RetryDelayDays:      cfg.RetryDelayDays,
		DifficultBaseDays:   cfg.DifficultBaseDays,
		DifficultJitterDays: cfg.DifficultJitterDays,
		MinSessionSeconds:   cfg.MinSessionSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid review parameters: %w", err)
	}
	return srs.NewEngine(params, nil)
}

// run starts the poller and serves HTTP until ctx is canceled.
func (app *application) run(ctx context.Context) error {
	if app.poller != nil {
		if err := app.poller.Start(ctx); err != nil {
			return err
		}
		defer app.poller.Stop()
	}

	return app.startHTTPServer(ctx, newRouter(app.service, app.logger))
}

// cleanup releases resources in reverse acquisition order.
func (app *application) cleanup() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("cleanup failed", slog.String("error", err.Error()))
		}
	}
	app.closers = nil
}
