package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is the root of every validation failure. Policy and entity
	// validation errors wrap it so callers can use errors.Is(err, ErrValidation).
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is nil or malformed.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUnknownKind is returned for an item kind outside the known set.
	ErrUnknownKind = errors.New("unknown item kind")

	// ErrUnknownPolicy is returned when a policy type has no registered policy.
	// It is a configuration error and is never silently defaulted.
	ErrUnknownPolicy = errors.New("unknown policy type")

	// ErrInvalidStatus is returned for a review status outside the known set.
	ErrInvalidStatus = errors.New("invalid review status")
)
