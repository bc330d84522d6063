package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
)

// Due-queue page sizes.
const (
	DefaultDueLimit = 20
	MaxDueLimit     = 500
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %w: %s is required", domain.ErrValidation, domain.ErrInvalidID, paramName)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w: %s has invalid format", domain.ErrValidation, domain.ErrInvalidID, paramName)
	}
	return id, nil
}

// parseLimit reads the limit query parameter. A missing value yields
// DefaultDueLimit; negative values pass through so the service rejects them.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultDueLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be an integer", domain.ErrValidation)
	}
	if limit > MaxDueLimit {
		return 0, fmt.Errorf("%w: limit must be at most %d", domain.ErrValidation, MaxDueLimit)
	}
	return limit, nil
}
