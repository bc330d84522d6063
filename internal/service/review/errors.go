package review

import (
	"errors"
	"fmt"

	"github.com/phrazzld/relearn-api/internal/domain"
)

// Service errors. Callers check them with errors.Is; the API layer maps them
// to status codes.
var (
	// ErrItemNotFound is returned when an outcome or lookup names an item that
	// does not exist. An item without review state is not an error.
	ErrItemNotFound = errors.New("reviewable item not found")

	// ErrConcurrencyConflict is returned when every attempt of the
	// load-modify-store cycle lost a race with another writer.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")

	// ErrStoreUnavailable is returned when persistence cannot be reached.
	// The call is not retried here.
	ErrStoreUnavailable = errors.New("review state store unavailable")

	// ErrNoCandidates is returned by selection when the pool is empty or fully mastered.
	ErrNoCandidates = errors.New("no candidate items")

	// ErrInvalidLimit is returned for a negative due-queue limit.
	ErrInvalidLimit = fmt.Errorf("%w: limit must be non-negative", domain.ErrValidation)
)

// ServiceError wraps unexpected failures with the operation that produced them.
type ServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
