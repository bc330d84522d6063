package srs

import (
	"fmt"
	"time"

	"github.com/phrazzld/relearn-api/internal/domain"
)

// BinaryComprehensionPolicy schedules video watch progress: an understood video
// moves to the low-priority pool, a misunderstood one comes back after a fixed delay.
type BinaryComprehensionPolicy struct {
	params *Params
}

// NewBinaryComprehensionPolicy creates the video-progress policy.
func NewBinaryComprehensionPolicy(params *Params) *BinaryComprehensionPolicy {
	return &BinaryComprehensionPolicy{params: params}
}

// Type implements Policy.
func (p *BinaryComprehensionPolicy) Type() domain.PolicyType {
	return domain.PolicyBinaryComprehension
}

// Apply implements Policy.
func (p *BinaryComprehensionPolicy) Apply(
	state *domain.ReviewState,
	outcome Outcome,
	now time.Time,
) (*domain.ReviewState, error) {
	if err := checkOutcome(p.Type(), state, outcome, p.params); err != nil {
		return nil, err
	}
	o, ok := outcome.(ComprehensionOutcome)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected payload %T", ErrOutcomeMismatch, outcome)
	}
	understood := o.Understood
	now = now.UTC()

	next := state.Clone()

	if understood {
		// Retry counter is left as is.
		next.InLowPriorityPool = true
		next.NextReviewAt = nil
		next.Status = domain.StatusUnderstood
	} else {
		next.RepetitionCount++
		next.InLowPriorityPool = false
		next.IntervalDays = p.params.RetryDelayDays
		next.NextReviewAt = addDays(now, p.params.RetryDelayDays)
		next.Status = domain.StatusInProgress
	}

	stamp(next, now)
	return next, nil
}
