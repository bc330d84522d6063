package srs

import (
	"fmt"

	"github.com/phrazzld/relearn-api/internal/domain"
)

// Params defines all configurable parameters for the scheduling policies.
type Params struct {
	// Continuous-quality
	MinEaseFactor  float64
	PassThreshold  int
	FirstInterval  int
	SecondInterval int

	// Binary-comprehension
	RetryDelayDays int

	// Tiered-difficulty
	Ladder              []int
	DifficultBaseDays   int
	DifficultJitterDays int
	MinSessionSeconds   int
}

// ParamsConfig allows overriding the default parameters. Zero values keep the default.
type ParamsConfig struct {
	MinEaseFactor       float64
	PassThreshold       int
	FirstInterval       int
	SecondInterval      int
	RetryDelayDays      int
	Ladder              []int
	DifficultBaseDays   int
	DifficultJitterDays int
	MinSessionSeconds   int
}

// NewDefaultParams creates a new Params instance with default values.
func NewDefaultParams() *Params {
	return &Params{
		MinEaseFactor:  domain.MinEaseFactor,
		PassThreshold:  3,
		FirstInterval:  1,
		SecondInterval: 6,

		RetryDelayDays: 2,

		Ladder:              []int{1, 3, 7, 14, 30},
		DifficultBaseDays:   7,
		DifficultJitterDays: 7,
		MinSessionSeconds:   30,
	}
}

// NewParams creates a new Params instance with custom configuration and validates it.
func NewParams(config ParamsConfig) (*Params, error) {
	params := NewDefaultParams()

	if config.MinEaseFactor > 0 {
		params.MinEaseFactor = config.MinEaseFactor
	}
	if config.PassThreshold > 0 {
		params.PassThreshold = config.PassThreshold
	}
	if config.FirstInterval > 0 {
		params.FirstInterval = config.FirstInterval
	}
	if config.SecondInterval > 0 {
		params.SecondInterval = config.SecondInterval
	}
	if config.RetryDelayDays > 0 {
		params.RetryDelayDays = config.RetryDelayDays
	}
	if len(config.Ladder) > 0 {
		params.Ladder = append([]int(nil), config.Ladder...)
	}
	if config.DifficultBaseDays > 0 {
		params.DifficultBaseDays = config.DifficultBaseDays
	}
	if config.DifficultJitterDays > 0 {
		params.DifficultJitterDays = config.DifficultJitterDays
	}
	if config.MinSessionSeconds > 0 {
		params.MinSessionSeconds = config.MinSessionSeconds
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// Validate checks the parameters for internal consistency.
func (p *Params) Validate() error {
	if p.MinEaseFactor < domain.MinEaseFactor {
		return fmt.Errorf("%w: min ease factor must be at least %.1f", ErrInvalidParams, domain.MinEaseFactor)
	}
	if p.PassThreshold < MinQuality || p.PassThreshold > MaxQuality {
		return fmt.Errorf("%w: pass threshold must be within %d-%d", ErrInvalidParams, MinQuality, MaxQuality)
	}
	if len(p.Ladder) == 0 {
		return fmt.Errorf("%w: ladder cannot be empty", ErrInvalidParams)
	}
	for i, days := range p.Ladder {
		if days <= 0 || (i > 0 && days < p.Ladder[i-1]) {
			return fmt.Errorf("%w: ladder must be positive and non-decreasing", ErrInvalidParams)
		}
	}
	if p.DifficultJitterDays <= 0 {
		return fmt.Errorf("%w: difficult jitter must be positive", ErrInvalidParams)
	}
	return nil
}

// LadderLength returns the number of rungs in the tiered-difficulty ladder.
func (p *Params) LadderLength() int {
	return len(p.Ladder)
}
