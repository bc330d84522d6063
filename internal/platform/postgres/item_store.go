package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/platform/logger"
	"github.com/phrazzld/relearn-api/internal/store"
)

// ItemStore implements store.ItemStore on PostgreSQL.
type ItemStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ItemStore = (*ItemStore)(nil)

// NewItemStore creates an ItemStore. A nil logger selects slog.Default.
func NewItemStore(db store.DBTX, logger *slog.Logger) *ItemStore {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemStore{
		db:     db,
		logger: logger.With(slog.String("component", "item_store")),
	}
}

// Create implements store.ItemStore.Create.
func (s *ItemStore) Create(ctx context.Context, item *domain.ReviewableItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		log.WarnContext(ctx, "item validation failed during create",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))
		return err
	}

	query := `
		INSERT INTO reviewable_items (id, kind, channel_id, title, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		string(item.Kind),
		item.ChannelID,
		item.Title,
		item.CreatedAt.UTC(),
	)
	if err != nil {
		mapped := MapError(err)
		log.ErrorContext(ctx, "failed to create item",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))
		if errors.Is(mapped, store.ErrDuplicate) {
			return fmt.Errorf("%w: item %s", store.ErrDuplicate, item.ID)
		}
		return mapped
	}

	log.DebugContext(ctx, "item created",
		slog.String("item_id", item.ID.String()),
		slog.String("kind", string(item.Kind)),
		slog.String("channel_id", item.ChannelID))
	return nil
}

// GetByID implements store.ItemStore.GetByID.
func (s *ItemStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReviewableItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, kind, channel_id, title, created_at
		FROM reviewable_items
		WHERE id = $1
	`
	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrNotFound) {
			log.DebugContext(ctx, "item not found", slog.String("item_id", id.String()))
			return nil, store.ErrItemNotFound
		}
		log.ErrorContext(ctx, "failed to get item",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return nil, mapped
	}
	return item, nil
}

// ListByChannel implements store.ItemStore.ListByChannel.
func (s *ItemStore) ListByChannel(ctx context.Context, channelID string) ([]*domain.ReviewableItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, kind, channel_id, title, created_at
		FROM reviewable_items
		WHERE channel_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, channelID)
	if err != nil {
		log.ErrorContext(ctx, "failed to list channel items",
			slog.String("error", err.Error()),
			slog.String("channel_id", channelID))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.ReviewableItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, MapError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

// Delete implements store.ItemStore.Delete. The review state goes with it
// through the foreign key cascade.
func (s *ItemStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM reviewable_items WHERE id = $1`, id)
	if err != nil {
		log.ErrorContext(ctx, "failed to delete item",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrItemNotFound); err != nil {
		return err
	}

	log.DebugContext(ctx, "item deleted", slog.String("item_id", id.String()))
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.ReviewableItem, error) {
	var item domain.ReviewableItem
	var kind string
	if err := row.Scan(&item.ID, &kind, &item.ChannelID, &item.Title, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Kind = domain.ItemKind(kind)
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}
