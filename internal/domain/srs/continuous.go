package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/phrazzld/relearn-api/internal/domain"
)

// ContinuousQualityPolicy is the SM-2 schedule used for flashcards.
type ContinuousQualityPolicy struct {
	params *Params
}

// NewContinuousQualityPolicy creates the flashcard policy.
func NewContinuousQualityPolicy(params *Params) *ContinuousQualityPolicy {
	return &ContinuousQualityPolicy{params: params}
}

// Type implements Policy.
func (p *ContinuousQualityPolicy) Type() domain.PolicyType {
	return domain.PolicyContinuousQuality
}

// Apply implements Policy.
//
// A failed recall (quality below the pass threshold) resets the repetition count
// and interval. A pass grows the interval 1, 6, then interval*ease. The ease
// factor moves on every review and never drops below the floor.
func (p *ContinuousQualityPolicy) Apply(
	state *domain.ReviewState,
	outcome Outcome,
	now time.Time,
) (*domain.ReviewState, error) {
	if err := checkOutcome(p.Type(), state, outcome, p.params); err != nil {
		return nil, err
	}
	o, ok := outcome.(QualityOutcome)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected payload %T", ErrOutcomeMismatch, outcome)
	}
	quality := o.Quality
	now = now.UTC()

	next := state.Clone()

	if quality < p.params.PassThreshold {
		next.RepetitionCount = 0
		next.IntervalDays = 0
	} else {
		next.IntervalDays = calculateInterval(state.RepetitionCount, state.IntervalDays, state.EaseFactor, p.params)
		next.RepetitionCount++
	}

	next.EaseFactor = calculateEaseFactor(state.EaseFactor, quality, p.params)
	next.NextReviewAt = addDays(now, next.IntervalDays)
	next.Status = domain.StatusInProgress
	stamp(next, now)

	return next, nil
}

// calculateEaseFactor applies the SM-2 ease adjustment: the worse the quality,
// the larger the drop.
func calculateEaseFactor(current float64, quality int, params *Params) float64 {
	miss := float64(MaxQuality - quality)
	ef := current + (0.1 - miss*(0.08+miss*0.02))
	return math.Max(params.MinEaseFactor, ef)
}

// calculateInterval returns the interval for a successful review, using the
// pre-review repetition count, interval and ease factor.
func calculateInterval(repetitions, interval int, easeFactor float64, params *Params) int {
	switch repetitions {
	case 0:
		return params.FirstInterval
	case 1:
		return params.SecondInterval
	default:
		return int(math.Round(float64(interval) * easeFactor))
	}
}
