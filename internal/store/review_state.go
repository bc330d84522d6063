package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
)

// DueFilter narrows a due scan. Zero values mean "any".
type DueFilter struct {
	PolicyType domain.PolicyType
	Kind       domain.ItemKind
}

// Matches reports whether state passes the filter.
func (f DueFilter) Matches(state *domain.ReviewState) bool {
	if f.PolicyType != "" && state.PolicyType != f.PolicyType {
		return false
	}
	if f.Kind != "" && state.Kind != f.Kind {
		return false
	}
	return true
}

// ReviewStateStore defines the interface for review state persistence.
type ReviewStateStore interface {
	// Get retrieves the review state of an item.
	// Returns ErrReviewStateNotFound if the item has never been reviewed.
	Get(ctx context.Context, itemID uuid.UUID) (*domain.ReviewState, error)

	// GetMany retrieves the states of the given items. Items without a state
	// are absent from the returned map; that is not an error.
	GetMany(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]*domain.ReviewState, error)

	// Save upserts a state using optimistic concurrency. state.Version must be
	// the version that was read (0 for a state that has never been stored).
	// Returns ErrVersionConflict if the stored version differs; on success
	// state.Version is advanced to the stored version.
	Save(ctx context.Context, state *domain.ReviewState) error

	// ListDue returns states whose NextReviewAt is non-null and not after now,
	// ordered by NextReviewAt ascending (ties by item ID), at most limit rows.
	ListDue(ctx context.Context, filter DueFilter, now time.Time, limit int) ([]*domain.ReviewState, error)
}

// ItemStore defines the interface for reviewable item persistence.
type ItemStore interface {
	// Create saves a new item. Returns ErrDuplicate if the ID is taken.
	Create(ctx context.Context, item *domain.ReviewableItem) error

	// GetByID retrieves an item. Returns ErrItemNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ReviewableItem, error)

	// ListByChannel returns every item in a channel's content pool, oldest first.
	ListByChannel(ctx context.Context, channelID string) ([]*domain.ReviewableItem, error)

	// Delete removes an item together with its review state.
	// Returns ErrItemNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
