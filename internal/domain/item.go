package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemKind identifies what sort of learning content an item is.
type ItemKind string

// Known item kinds.
const (
	KindFlashcard     ItemKind = "flashcard"
	KindVideoProgress ItemKind = "video-progress"
	KindVideoReview   ItemKind = "video-review"
)

// maxTitleLength bounds the optional display title.
const maxTitleLength = 500

// Valid reports whether k is one of the known kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindFlashcard, KindVideoProgress, KindVideoReview:
		return true
	default:
		return false
	}
}

// PolicyType returns the scheduling policy that governs items of this kind.
func (k ItemKind) PolicyType() (PolicyType, error) {
	switch k {
	case KindFlashcard:
		return PolicyContinuousQuality, nil
	case KindVideoProgress:
		return PolicyBinaryComprehension, nil
	case KindVideoReview:
		return PolicyTieredDifficulty, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownKind, string(k))
	}
}

// ReviewableItem is an entity eligible for spaced review: a vocabulary entry,
// a watched-video progress record or a video-review record.
type ReviewableItem struct {
	ID        uuid.UUID `json:"id"`
	Kind      ItemKind  `json:"kind"`
	ChannelID string    `json:"channel_id,omitempty"` // content pool the item belongs to
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewReviewableItem creates a validated item with a fresh ID.
func NewReviewableItem(kind ItemKind, channelID, title string, now time.Time) (*ReviewableItem, error) {
	item := &ReviewableItem{
		ID:        uuid.New(),
		Kind:      kind,
		ChannelID: strings.TrimSpace(channelID),
		Title:     strings.TrimSpace(title),
		CreatedAt: now.UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks that the item has a usable ID and a known kind.
func (i *ReviewableItem) Validate() error {
	if i.ID == uuid.Nil {
		return fmt.Errorf("%w: %w: item ID cannot be empty", ErrValidation, ErrInvalidID)
	}

	if !i.Kind.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownKind, string(i.Kind))
	}

	if len(i.Title) > maxTitleLength {
		return fmt.Errorf("%w: title longer than %d characters", ErrValidation, maxTitleLength)
	}

	return nil
}
