package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/relearn-api/internal/api/shared"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/domain/srs"
	"github.com/phrazzld/relearn-api/internal/service/review"
	"github.com/phrazzld/relearn-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	case errors.Is(err, review.ErrItemNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, review.ErrConcurrencyConflict),
		errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, review.ErrStoreUnavailable),
		errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable

	case errors.Is(err, review.ErrNoCandidates):
		return http.StatusNoContent

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)

	case errors.Is(err, srs.ErrInvalidQuality):
		return fmt.Sprintf("Quality must be between %d and %d", srs.MinQuality, srs.MaxQuality)
	case errors.Is(err, srs.ErrInvalidDifficulty):
		return "Difficulty must be one of easy, normal, difficult"
	case errors.Is(err, srs.ErrSessionTooShort):
		return "Session too short to count as a review"
	case errors.Is(err, srs.ErrOutcomeMismatch):
		return "Outcome does not match the item's review policy"
	case errors.Is(err, srs.ErrNilOutcome):
		return "Outcome is required"
	case errors.Is(err, domain.ErrUnknownKind):
		return "Unknown item kind"
	case errors.Is(err, domain.ErrUnknownPolicy):
		return "Unknown policy type"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, errOutcomeShape):
		return "Provide exactly one of quality, understood or difficulty"
	case errors.Is(err, review.ErrInvalidLimit):
		return "Limit must be non-negative"
	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"

	case errors.Is(err, review.ErrItemNotFound),
		errors.Is(err, store.ErrItemNotFound):
		return "Item not found"

	case errors.Is(err, review.ErrConcurrencyConflict),
		errors.Is(err, store.ErrVersionConflict):
		return "Review state was modified concurrently, please retry"
	case errors.Is(err, store.ErrDuplicate):
		return "Item already exists"

	case errors.Is(err, review.ErrStoreUnavailable),
		errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return "Service temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field without echoing its value.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}

	fe := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required", "required_without_all":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "invalid UUID"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. fallbackMsg, if
// set, replaces the generic message of unclassified server errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string) {
	status := MapErrorToStatusCode(err)
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallbackMsg != "" {
		msg = fallbackMsg
	}

	if status == http.StatusConflict {
		shared.RespondWithErrorAndLog(w, r, status, msg, err, shared.WithElevatedLogLevel())
		return
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}
