package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/phrazzld/relearn-api/internal/store"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a client and verifies the connection with PING.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, mapError(err))
	}
	return client, nil
}

// Key prefixes.
const (
	keyPrefix        = "relearn:"
	prefixItem       = keyPrefix + "item:"
	prefixChannel    = keyPrefix + "channel:"
	prefixState      = keyPrefix + "state:"
	keyDue           = keyPrefix + "due"
	dueScanBatchSize = 200
)

func itemKey(id fmt.Stringer) string      { return prefixItem + id.String() }
func stateKey(id fmt.Stringer) string     { return prefixState + id.String() }
func channelKey(channelID string) string { return prefixChannel + channelID }

// mapError translates go-redis errors to store sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %v", store.ErrVersionConflict, err)
	case errors.Is(err, redis.ErrClosed):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
