package srs

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/phrazzld/relearn-api/internal/domain"
)

// Policy errors. All outcome errors wrap domain.ErrValidation.
var (
	ErrNilState          = fmt.Errorf("%w: review state cannot be nil", domain.ErrValidation)
	ErrNilOutcome        = fmt.Errorf("%w: outcome cannot be nil", domain.ErrValidation)
	ErrInvalidQuality    = fmt.Errorf("%w: invalid quality", domain.ErrValidation)
	ErrInvalidDifficulty = fmt.Errorf("%w: invalid difficulty", domain.ErrValidation)
	ErrSessionTooShort   = fmt.Errorf("%w: session too short", domain.ErrValidation)
	ErrOutcomeMismatch   = fmt.Errorf("%w: outcome does not match policy", domain.ErrValidation)
	ErrInvalidParams     = errors.New("invalid scheduling parameters")
)

// RandomSource supplies the jitter for randomized delays.
// *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	IntN(n int) int
}

// DefaultSource draws from the goroutine-safe top-level math/rand/v2 functions.
var DefaultSource RandomSource = globalSource{}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Policy computes the next scheduling state from the current one.
// Apply never mutates its input and returns an error before producing any
// state when the outcome is outside the policy's domain.
type Policy interface {
	Type() domain.PolicyType
	Apply(state *domain.ReviewState, outcome Outcome, now time.Time) (*domain.ReviewState, error)
}

// Engine dispatches review outcomes to the policy registered for a state's PolicyType.
type Engine struct {
	policies map[domain.PolicyType]Policy
}

// NewEngine creates an engine with all three policies. A nil rng uses the
// goroutine-safe global source.
func NewEngine(params *Params, rng RandomSource) (*Engine, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = DefaultSource
	}

	return NewEngineWithPolicies(
		NewContinuousQualityPolicy(params),
		NewBinaryComprehensionPolicy(params),
		NewTieredDifficultyPolicy(params, rng),
	), nil
}

// NewEngineWithPolicies creates an engine from explicit policies; later entries
// replace earlier ones with the same type.
func NewEngineWithPolicies(policies ...Policy) *Engine {
	e := &Engine{policies: make(map[domain.PolicyType]Policy, len(policies))}
	for _, p := range policies {
		e.policies[p.Type()] = p
	}
	return e
}

// Policy returns the policy registered for policyType.
func (e *Engine) Policy(policyType domain.PolicyType) (Policy, error) {
	p, ok := e.policies[policyType]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrUnknownPolicy, string(policyType))
	}
	return p, nil
}

// Apply validates the inputs and delegates to the policy governing state.
func (e *Engine) Apply(state *domain.ReviewState, outcome Outcome, now time.Time) (*domain.ReviewState, error) {
	if state == nil {
		return nil, ErrNilState
	}
	p, err := e.Policy(state.PolicyType)
	if err != nil {
		return nil, err
	}
	return p.Apply(state, outcome, now)
}

// checkOutcome runs the checks shared by every policy.
func checkOutcome(policyType domain.PolicyType, state *domain.ReviewState, outcome Outcome, params *Params) error {
	if state == nil {
		return ErrNilState
	}
	if outcome == nil {
		return ErrNilOutcome
	}
	if outcome.PolicyType() != policyType || state.PolicyType != policyType {
		return fmt.Errorf("%w: %s outcome for %s state", ErrOutcomeMismatch, outcome.PolicyType(), state.PolicyType)
	}
	return outcome.Validate(params)
}

// addDays schedules a review a whole number of days after now.
func addDays(now time.Time, days int) *time.Time {
	t := now.AddDate(0, 0, days)
	return &t
}

// stamp records the review time on a state about to be returned.
func stamp(state *domain.ReviewState, now time.Time) {
	reviewed := now
	state.LastReviewedAt = &reviewed
	state.UpdatedAt = now
}
