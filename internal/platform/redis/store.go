package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/platform/logger"
	"github.com/phrazzld/relearn-api/internal/store"
	"github.com/redis/go-redis/v9"
)

// Store implements store.ItemStore and store.ReviewStateStore on Redis.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

var (
	_ store.ItemStore        = (*Store)(nil)
	_ store.ReviewStateStore = (*Store)(nil)
)

// NewStore wraps an existing client. A nil logger selects slog.Default.
func NewStore(client *redis.Client, logger *slog.Logger) *Store {
	if client == nil {
		// ALLOW-PANIC: constructor misuse
		panic("redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		logger: logger.With(slog.String("component", "redis_store")),
	}
}

// Create implements store.ItemStore.Create.
func (s *Store) Create(ctx context.Context, item *domain.ReviewableItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	key := itemKey(item.ID)
	written := false
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%w: item %s", store.ErrDuplicate, item.ID)
		}

		written = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, channelKey(item.ChannelID), redis.Z{
				Score:  float64(item.CreatedAt.UnixMicro()),
				Member: item.ID.String(),
			})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: item %s was created concurrently", store.ErrDuplicate, item.ID)
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return err
		}
		logger.FromContextOrDefault(ctx, s.logger).ErrorContext(ctx, "failed to create item",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))

		// EXEC does not roll back commands that already ran, so an item whose
		// channel entry failed is removed again rather than left unselectable.
		if written {
			if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
				logger.FromContextOrDefault(ctx, s.logger).ErrorContext(ctx, "failed to remove partially created item",
					slog.String("error", delErr.Error()),
					slog.String("item_id", item.ID.String()))
			}
		}
		return mapError(err)
	}
	return nil
}

// GetByID implements store.ItemStore.GetByID.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReviewableItem, error) {
	data, err := s.client.Get(ctx, itemKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrItemNotFound
		}
		return nil, mapError(err)
	}
	return decodeItem(data)
}

// ListByChannel implements store.ItemStore.ListByChannel.
func (s *Store) ListByChannel(ctx context.Context, channelID string) ([]*domain.ReviewableItem, error) {
	ids, err := s.client.ZRange(ctx, channelKey(channelID), 0, -1).Result()
	if err != nil {
		return nil, mapError(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefixItem + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, mapError(err)
	}

	items := make([]*domain.ReviewableItem, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Deleted between ZRANGE and MGET.
			continue
		}
		item, err := decodeItem([]byte(raw))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Delete implements store.ItemStore.Delete, removing the item, its state and
// both index entries in one transaction.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, itemKey(id))
		pipe.Del(ctx, stateKey(id))
		pipe.ZRem(ctx, channelKey(item.ChannelID), id.String())
		pipe.ZRem(ctx, keyDue, id.String())
		return nil
	})
	if err != nil {
		return mapError(err)
	}
	if deleted.Val() == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

// Get implements store.ReviewStateStore.Get.
func (s *Store) Get(ctx context.Context, itemID uuid.UUID) (*domain.ReviewState, error) {
	data, err := s.client.Get(ctx, stateKey(itemID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrReviewStateNotFound
		}
		return nil, mapError(err)
	}
	return decodeState(data)
}

// GetMany implements store.ReviewStateStore.GetMany.
func (s *Store) GetMany(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]*domain.ReviewState, error) {
	result := make(map[uuid.UUID]*domain.ReviewState, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = stateKey(id)
	}
	states, err := s.loadStates(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, state := range states {
		result[state.ItemID] = state
	}
	return result, nil
}

// Save implements store.ReviewStateStore.Save.
func (s *Store) Save(ctx context.Context, state *domain.ReviewState) error {
	if state == nil {
		return fmt.Errorf("%w: review state cannot be nil", store.ErrInvalidEntity)
	}
	if err := state.Validate(); err != nil {
		return err
	}

	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("item_id", state.ItemID.String()),
		slog.Int64("expected_version", state.Version))

	key := stateKey(state.ItemID)
	expected := state.Version

	next := state.Clone()
	next.Version = expected + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode review state: %w", err)
	}

	ownerKey := itemKey(state.ItemID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		// Watching the item key aborts the write if Delete runs concurrently.
		exists, err := tx.Exists(ctx, ownerKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: item %s", store.ErrItemNotFound, state.ItemID)
		}

		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expected {
			return fmt.Errorf("%w: item %s is at version %d, write expected %d",
				store.ErrVersionConflict, state.ItemID, current, expected)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			member := state.ItemID.String()
			if state.NextReviewAt != nil {
				pipe.ZAdd(ctx, keyDue, redis.Z{Score: dueScore(*state.NextReviewAt), Member: member})
			} else {
				pipe.ZRem(ctx, keyDue, member)
			}
			return nil
		})
		return err
	}, key, ownerKey)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, store.ErrVersionConflict) {
			log.InfoContext(ctx, "review state version conflict", slog.String("error", err.Error()))
		} else {
			log.ErrorContext(ctx, "failed to save review state", slog.String("error", err.Error()))
		}
		return err
	}

	state.Version = next.Version
	return nil
}

// ListDue implements store.ReviewStateStore.ListDue. The due index is scanned
// in score order and filtered in batches until limit states are collected.
// Scores carry microseconds, the same precision Postgres keeps, and equal
// scores come back in member order, so ties resolve by item ID as they do there.
func (s *Store) ListDue(
	ctx context.Context,
	filter store.DueFilter,
	now time.Time,
	limit int,
) ([]*domain.ReviewState, error) {
	due := make([]*domain.ReviewState, 0, max(limit, 0))
	if limit <= 0 {
		return due, nil
	}

	maxScore := strconv.FormatInt(now.UnixMicro(), 10)
	for offset := int64(0); len(due) < limit; offset += dueScanBatchSize {
		ids, err := s.client.ZRangeByScore(ctx, keyDue, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    maxScore,
			Offset: offset,
			Count:  dueScanBatchSize,
		}).Result()
		if err != nil {
			return nil, mapError(err)
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = prefixState + id
		}
		states, err := s.loadStates(ctx, keys)
		if err != nil {
			return nil, err
		}
		for _, state := range states {
			if !state.IsDue(now) || !filter.Matches(state) {
				continue
			}
			due = append(due, state)
			if len(due) == limit {
				break
			}
		}

		if len(ids) < dueScanBatchSize {
			break
		}
	}

	slices.SortStableFunc(due, compareDue)
	return due, nil
}

// dueScore is the due-index score of a review time: unix microseconds, which
// a float64 holds exactly.
func dueScore(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func compareDue(a, b *domain.ReviewState) int {
	if c := a.NextReviewAt.Compare(*b.NextReviewAt); c != 0 {
		return c
	}
	return strings.Compare(a.ItemID.String(), b.ItemID.String())
}

// loadStates fetches keys with MGET, preserving order and skipping misses.
func (s *Store) loadStates(ctx context.Context, keys []string) ([]*domain.ReviewState, error) {
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, mapError(err)
	}

	states := make([]*domain.ReviewState, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		state, err := decodeState([]byte(raw))
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var stored struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return 0, fmt.Errorf("failed to decode stored version: %w", err)
	}
	return stored.Version, nil
}

func decodeItem(data []byte) (*domain.ReviewableItem, error) {
	var item domain.ReviewableItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return &item, nil
}

func decodeState(data []byte) (*domain.ReviewState, error) {
	var state domain.ReviewState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode review state: %w", err)
	}
	return &state, nil
}
