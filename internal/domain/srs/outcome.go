package srs

import (
	"fmt"

	"github.com/phrazzld/relearn-api/internal/domain"
)

// Quality bounds for the continuous-quality policy.
const (
	MinQuality = 0
	MaxQuality = 5
)

// Difficulty is the learner's self-rated difficulty for a video review.
type Difficulty string

// Difficulty values accepted by the tiered-difficulty policy.
const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyNormal    Difficulty = "normal"
	DifficultyDifficult Difficulty = "difficult"
)

// Outcome is the policy-specific payload of a review event. The concrete types
// are QualityOutcome, ComprehensionOutcome and DifficultyOutcome.
type Outcome interface {
	// PolicyType reports which policy accepts this outcome.
	PolicyType() domain.PolicyType
	// Validate rejects payloads outside the policy's accepted domain.
	Validate(params *Params) error
}

// QualityOutcome grades recall from 0 (total failure) to 5 (perfect recall).
type QualityOutcome struct {
	Quality int
}

// PolicyType implements Outcome.
func (QualityOutcome) PolicyType() domain.PolicyType { return domain.PolicyContinuousQuality }

// Validate implements Outcome.
func (o QualityOutcome) Validate(_ *Params) error {
	if o.Quality < MinQuality || o.Quality > MaxQuality {
		return fmt.Errorf("%w: quality %d outside %d-%d", ErrInvalidQuality, o.Quality, MinQuality, MaxQuality)
	}
	return nil
}

// ComprehensionOutcome records whether a watched video was understood.
type ComprehensionOutcome struct {
	Understood bool
}

// PolicyType implements Outcome.
func (ComprehensionOutcome) PolicyType() domain.PolicyType {
	return domain.PolicyBinaryComprehension
}

// Validate implements Outcome.
func (ComprehensionOutcome) Validate(_ *Params) error { return nil }

// DifficultyOutcome rates a video review session.
type DifficultyOutcome struct {
	Difficulty             Difficulty
	SessionDurationSeconds int
}

// PolicyType implements Outcome.
func (DifficultyOutcome) PolicyType() domain.PolicyType { return domain.PolicyTieredDifficulty }

// Validate implements Outcome. Sessions shorter than the configured floor are
// not counted as a review at all.
func (o DifficultyOutcome) Validate(params *Params) error {
	switch o.Difficulty {
	case DifficultyEasy, DifficultyNormal, DifficultyDifficult:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDifficulty, string(o.Difficulty))
	}

	if o.SessionDurationSeconds < params.MinSessionSeconds {
		return fmt.Errorf("%w: %ds is below the %ds floor",
			ErrSessionTooShort, o.SessionDurationSeconds, params.MinSessionSeconds)
	}
	return nil
}
