package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/phrazzld/relearn-api/internal/config"
	"github.com/sethvargo/go-retry"
)

const (
	pingTimeout      = 5 * time.Second
	pingRetries      = 5
	pingRetryBackoff = 250 * time.Millisecond
)

// setupDatabase opens the Postgres pool and waits for the server to accept
// connections, retrying with exponential backoff.
func setupDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	attempt := 0
	backoff := retry.WithMaxRetries(pingRetries, retry.NewExponential(pingRetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("database not ready", slog.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
	}

	logger.Info("database connection established", slog.Int("attempts", attempt))
	return db, nil
}
