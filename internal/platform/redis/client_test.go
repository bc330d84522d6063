package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	plain := errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil reply", err: redis.Nil, want: store.ErrNotFound},
		{name: "watch aborted", err: redis.TxFailedErr, want: store.ErrVersionConflict},
		{name: "closed client", err: redis.ErrClosed, want: store.ErrUnavailable},
		{name: "dial failure", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, want: store.ErrUnavailable},
		{name: "wrapped dial failure", err: fmt.Errorf("ping: %w", &net.OpError{Op: "dial", Err: errors.New("refused")}), want: store.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, mapError(nil))
	assert.Equal(t, plain, mapError(plain))
}

func TestKeys(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("6f1c1e44-0b2a-4c52-9d6a-3f2b8e0d7a11")
	assert.Equal(t, "relearn:item:6f1c1e44-0b2a-4c52-9d6a-3f2b8e0d7a11", itemKey(id))
	assert.Equal(t, "relearn:state:6f1c1e44-0b2a-4c52-9d6a-3f2b8e0d7a11", stateKey(id))
	assert.Equal(t, "relearn:channel:ch-1", channelKey("ch-1"))
}

func TestNewClientUnreachable(t *testing.T) {
	t.Parallel()

	// Grab a free port and release it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = NewClient(ctx, Config{Addr: addr, DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
