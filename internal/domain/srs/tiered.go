package srs

import (
	"fmt"
	"time"

	"github.com/phrazzld/relearn-api/internal/domain"
)

// TieredDifficultyPolicy schedules video reviews over a fixed interval ladder.
type TieredDifficultyPolicy struct {
	params *Params
	rng    RandomSource
}

// NewTieredDifficultyPolicy creates the video-review policy. rng supplies the
// jitter for difficult outcomes.
func NewTieredDifficultyPolicy(params *Params, rng RandomSource) *TieredDifficultyPolicy {
	if rng == nil {
		rng = DefaultSource
	}
	return &TieredDifficultyPolicy{params: params, rng: rng}
}

// Type implements Policy.
func (p *TieredDifficultyPolicy) Type() domain.PolicyType {
	return domain.PolicyTieredDifficulty
}

// Apply implements Policy.
//
// easy ends automatic review. difficult drops back to the bottom rung and waits
// a randomized base+[0,jitter) days so that items reviewed together do not come
// due together. normal climbs one rung, except on the very first review where
// the item is scheduled at rung 0.
func (p *TieredDifficultyPolicy) Apply(
	state *domain.ReviewState,
	outcome Outcome,
	now time.Time,
) (*domain.ReviewState, error) {
	if err := checkOutcome(p.Type(), state, outcome, p.params); err != nil {
		return nil, err
	}
	o, ok := outcome.(DifficultyOutcome)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected payload %T", ErrOutcomeMismatch, outcome)
	}
	now = now.UTC()

	next := state.Clone()
	next.RepetitionLevel = clampLevel(state.RepetitionLevel, p.params.LadderLength())

	switch o.Difficulty {
	case DifficultyEasy:
		next.NextReviewAt = nil
		next.IntervalDays = 0
		next.Status = domain.StatusMastered
	case DifficultyDifficult:
		next.RepetitionLevel = 0
		next.IntervalDays = p.params.DifficultBaseDays + p.rng.IntN(p.params.DifficultJitterDays)
		next.NextReviewAt = addDays(now, next.IntervalDays)
		next.Status = domain.StatusInProgress
	case DifficultyNormal:
		if state.TotalReviewCount > 0 {
			next.RepetitionLevel = clampLevel(next.RepetitionLevel+1, p.params.LadderLength())
		}
		next.IntervalDays = p.params.Ladder[next.RepetitionLevel]
		next.NextReviewAt = addDays(now, next.IntervalDays)
		next.Status = domain.StatusInProgress
	}

	next.TotalReviewCount++
	next.TotalReviewDurationSeconds += o.SessionDurationSeconds
	stamp(next, now)

	return next, nil
}

// clampLevel keeps a ladder index within [0, length-1].
func clampLevel(level, length int) int {
	if level < 0 {
		return 0
	}
	if level > length-1 {
		return length - 1
	}
	return level
}
