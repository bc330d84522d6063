package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PolicyType names the scheduling policy that governs a ReviewState.
type PolicyType string

// Known policy types.
const (
	PolicyContinuousQuality   PolicyType = "continuous-quality"
	PolicyBinaryComprehension PolicyType = "binary-comprehension"
	PolicyTieredDifficulty    PolicyType = "tiered-difficulty"
)

// Valid reports whether p is one of the known policy types.
func (p PolicyType) Valid() bool {
	switch p {
	case PolicyContinuousQuality, PolicyBinaryComprehension, PolicyTieredDifficulty:
		return true
	default:
		return false
	}
}

// ReviewStatus is the coarse progress marker used by the candidate selector.
type ReviewStatus string

// Known review statuses.
const (
	StatusUnwatched  ReviewStatus = "unwatched"
	StatusInProgress ReviewStatus = "in_progress"
	StatusUnderstood ReviewStatus = "understood"
	StatusMastered   ReviewStatus = "mastered"
)

// Valid reports whether s is one of the known statuses.
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusUnwatched, StatusInProgress, StatusUnderstood, StatusMastered:
		return true
	default:
		return false
	}
}

// Scheduling defaults.
const (
	// DefaultEaseFactor is the ease factor of a freshly created continuous-quality state.
	DefaultEaseFactor = 2.5

	// MinEaseFactor is the floor the ease factor never drops below.
	MinEaseFactor = 1.3
)

// ReviewState is the mutable scheduling record of one ReviewableItem.
//
// RepetitionCount is the consecutive-success count for continuous-quality items
// and the retry count for binary-comprehension items. RepetitionLevel is the
// ladder index for tiered-difficulty items. A nil NextReviewAt means the item is
// not scheduled for automatic review.
type ReviewState struct {
	ItemID                     uuid.UUID    `json:"item_id"`
	Kind                       ItemKind     `json:"kind"`
	PolicyType                 PolicyType   `json:"policy_type"`
	Status                     ReviewStatus `json:"status"`
	EaseFactor                 float64      `json:"ease_factor"`
	IntervalDays               int          `json:"interval_days"`
	RepetitionCount            int          `json:"repetition_count"`
	RepetitionLevel            int          `json:"repetition_level"`
	NextReviewAt               *time.Time   `json:"next_review_at"`
	LastReviewedAt             *time.Time   `json:"last_reviewed_at"`
	TotalReviewCount           int          `json:"total_review_count"`
	TotalReviewDurationSeconds int          `json:"total_review_duration_seconds"`
	InLowPriorityPool          bool         `json:"in_low_priority_pool"`
	Version                    int64        `json:"version"` // optimistic concurrency counter, 0 = never stored
	CreatedAt                  time.Time    `json:"created_at"`
	UpdatedAt                  time.Time    `json:"updated_at"`
}

// NewReviewState returns the default state created lazily on an item's first
// review event. The ladder and repetition counters start at index 0.
func NewReviewState(item *ReviewableItem, now time.Time) (*ReviewState, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: item cannot be nil", ErrValidation)
	}

	policyType, err := item.Kind.PolicyType()
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	return &ReviewState{
		ItemID:     item.ID,
		Kind:       item.Kind,
		PolicyType: policyType,
		Status:     StatusUnwatched,
		EaseFactor: DefaultEaseFactor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Clone returns a deep copy so policies never alias the caller's timestamps.
func (s *ReviewState) Clone() *ReviewState {
	if s == nil {
		return nil
	}

	c := *s
	c.NextReviewAt = copyTime(s.NextReviewAt)
	c.LastReviewedAt = copyTime(s.LastReviewedAt)
	return &c
}

// IsDue reports whether the state is scheduled and its review time has elapsed.
func (s *ReviewState) IsDue(now time.Time) bool {
	return s.NextReviewAt != nil && !s.NextReviewAt.After(now)
}

// Validate checks the structural invariants of a ReviewState.
func (s *ReviewState) Validate() error {
	if s.ItemID == uuid.Nil {
		return fmt.Errorf("%w: %w: review state item ID cannot be empty", ErrValidation, ErrInvalidID)
	}

	if !s.PolicyType.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownPolicy, string(s.PolicyType))
	}

	if !s.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidStatus, string(s.Status))
	}

	if s.PolicyType == PolicyContinuousQuality && s.EaseFactor < MinEaseFactor {
		return fmt.Errorf("%w: ease factor %.2f below %.1f", ErrValidation, s.EaseFactor, MinEaseFactor)
	}

	if s.IntervalDays < 0 || s.RepetitionCount < 0 || s.RepetitionLevel < 0 {
		return fmt.Errorf("%w: interval and repetition counters must be non-negative", ErrValidation)
	}

	if s.TotalReviewCount < 0 || s.TotalReviewDurationSeconds < 0 {
		return fmt.Errorf("%w: review totals must be non-negative", ErrValidation)
	}

	if s.NextReviewAt != nil && s.LastReviewedAt != nil && s.NextReviewAt.Before(*s.LastReviewedAt) {
		return fmt.Errorf("%w: next review precedes last review", ErrValidation)
	}

	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
