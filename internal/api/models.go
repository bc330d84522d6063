package api

import (
	"fmt"
	"time"

	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/domain/srs"
)

// errOutcomeShape rejects outcome bodies that do not name exactly one payload.
var errOutcomeShape = fmt.Errorf(
	"%w: exactly one of quality, understood or difficulty is required", domain.ErrValidation)

// CreateItemRequest is the body of POST /api/items.
type CreateItemRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=flashcard video-progress video-review"`
	ChannelID string `json:"channel_id" validate:"max=255"`
	Title     string `json:"title"`
}

// OutcomeRequest is the body of POST /api/items/{id}/outcomes. Exactly one of
// Quality, Understood or Difficulty is set.
type OutcomeRequest struct {
	Quality                *int    `json:"quality"`
	Understood             *bool   `json:"understood"`
	Difficulty             *string `json:"difficulty" validate:"omitempty,oneof=easy normal difficult"`
	SessionDurationSeconds *int    `json:"session_duration_seconds" validate:"omitempty,gte=0"`
}

// Validate checks that the request carries a single outcome payload.
func (r *OutcomeRequest) Validate() error {
	set := 0
	for _, present := range []bool{r.Quality != nil, r.Understood != nil, r.Difficulty != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return errOutcomeShape
	}
	if r.Difficulty != nil && r.SessionDurationSeconds == nil {
		return fmt.Errorf("%w: session_duration_seconds is required with difficulty", domain.ErrValidation)
	}
	if r.Difficulty == nil && r.SessionDurationSeconds != nil {
		return fmt.Errorf("%w: session_duration_seconds is only accepted with difficulty", domain.ErrValidation)
	}
	return nil
}

// ToOutcome converts a validated request to the policy engine's payload.
func (r *OutcomeRequest) ToOutcome() srs.Outcome {
	switch {
	case r.Quality != nil:
		return srs.QualityOutcome{Quality: *r.Quality}
	case r.Understood != nil:
		return srs.ComprehensionOutcome{Understood: *r.Understood}
	case r.Difficulty != nil:
		return srs.DifficultyOutcome{
			Difficulty:             srs.Difficulty(*r.Difficulty),
			SessionDurationSeconds: *r.SessionDurationSeconds,
		}
	default:
		return nil
	}
}

// ItemResponse represents a reviewable item.
type ItemResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ChannelID string    `json:"channel_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewStateResponse represents an item's scheduling state.
type ReviewStateResponse struct {
	ItemID                     string     `json:"item_id"`
	Kind                       string     `json:"kind"`
	PolicyType                 string     `json:"policy_type"`
	Status                     string     `json:"status"`
	EaseFactor                 float64    `json:"ease_factor"`
	IntervalDays               int        `json:"interval_days"`
	RepetitionCount            int        `json:"repetition_count"`
	RepetitionLevel            int        `json:"repetition_level"`
	NextReviewAt               *time.Time `json:"next_review_at"`
	LastReviewedAt             *time.Time `json:"last_reviewed_at"`
	TotalReviewCount           int        `json:"total_review_count"`
	TotalReviewDurationSeconds int        `json:"total_review_duration_seconds"`
	InLowPriorityPool          bool       `json:"in_low_priority_pool"`
	Version                    int64      `json:"version"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

// ItemDetailResponse is an item with its state, which is null before the
// first recorded outcome.
type ItemDetailResponse struct {
	Item  ItemResponse         `json:"item"`
	State *ReviewStateResponse `json:"state"`
}

// DueItemsResponse lists due review states, earliest first.
type DueItemsResponse struct {
	Items []ReviewStateResponse `json:"items"`
	Count int                   `json:"count"`
}

// NextItemResponse is the selector's choice for a channel.
type NextItemResponse struct {
	Item ItemResponse `json:"item"`
	Tier string       `json:"tier"`
}

func itemToResponse(item *domain.ReviewableItem) ItemResponse {
	return ItemResponse{
		ID:        item.ID.String(),
		Kind:      string(item.Kind),
		ChannelID: item.ChannelID,
		Title:     item.Title,
		CreatedAt: item.CreatedAt,
	}
}

func stateToResponse(state *domain.ReviewState) ReviewStateResponse {
	return ReviewStateResponse{
		ItemID:                     state.ItemID.String(),
		Kind:                       string(state.Kind),
		PolicyType:                 string(state.PolicyType),
		Status:                     string(state.Status),
		EaseFactor:                 state.EaseFactor,
		IntervalDays:               state.IntervalDays,
		RepetitionCount:            state.RepetitionCount,
		RepetitionLevel:            state.RepetitionLevel,
		NextReviewAt:               state.NextReviewAt,
		LastReviewedAt:             state.LastReviewedAt,
		TotalReviewCount:           state.TotalReviewCount,
		TotalReviewDurationSeconds: state.TotalReviewDurationSeconds,
		InLowPriorityPool:          state.InLowPriorityPool,
		Version:                    state.Version,
		UpdatedAt:                  state.UpdatedAt,
	}
}
