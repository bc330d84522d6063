package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/api/shared"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/domain/selection"
	"github.com/phrazzld/relearn-api/internal/domain/srs"
	"github.com/phrazzld/relearn-api/internal/platform/logger"
	"github.com/phrazzld/relearn-api/internal/service/review"
	"github.com/phrazzld/relearn-api/internal/store"
)

// ReviewService is the subset of the review service used by the handlers.
type ReviewService interface {
	CreateItem(ctx context.Context, kind domain.ItemKind, channelID, title string, now time.Time) (*domain.ReviewableItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*review.ItemView, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
	RecordOutcome(ctx context.Context, itemID uuid.UUID, outcome srs.Outcome, now time.Time) (*domain.ReviewState, error)
	DueItems(ctx context.Context, filter store.DueFilter, limit int, now time.Time) ([]*domain.ReviewState, error)
	SelectNextForChannel(ctx context.Context, channelID string, now time.Time) (selection.Selection, error)
}

// ReviewHandler serves the item, outcome, due-queue and selection endpoints.
type ReviewHandler struct {
	service ReviewService
	now     func() time.Time
	logger  *slog.Logger
}

// NewReviewHandler creates a ReviewHandler. A nil clock uses time.Now.
func NewReviewHandler(service ReviewService, clock func() time.Time, logger *slog.Logger) *ReviewHandler {
	if service == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("review service cannot be nil for ReviewHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ReviewHandler")
	}
	if clock == nil {
		clock = time.Now
	}

	return &ReviewHandler{
		service: service,
		now:     clock,
		logger:  logger.With(slog.String("component", "review_handler")),
	}
}

// Routes registers the handler's endpoints on r.
func (h *ReviewHandler) Routes(r chi.Router) {
	r.Post("/items", h.CreateItem)
	r.Get("/items/{id}", h.GetItem)
	r.Delete("/items/{id}", h.DeleteItem)
	r.Post("/items/{id}/outcomes", h.RecordOutcome)
	r.Get("/reviews/due", h.DueItems)
	r.Get("/channels/{channel}/next", h.NextForChannel)
}

// CreateItem handles POST /items.
func (h *ReviewHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	item, err := h.service.CreateItem(r.Context(), domain.ItemKind(req.Kind), req.ChannelID, req.Title, h.now())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create item")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, itemToResponse(item))
}

// GetItem handles GET /items/{id}.
func (h *ReviewHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	view, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get item")
		return
	}

	resp := ItemDetailResponse{Item: itemToResponse(view.Item)}
	if view.State != nil {
		st := stateToResponse(view.State)
		resp.State = &st
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// DeleteItem handles DELETE /items/{id}.
func (h *ReviewHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecordOutcome handles POST /items/{id}/outcomes.
func (h *ReviewHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req OutcomeRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	state, err := h.service.RecordOutcome(r.Context(), id, req.ToOutcome(), h.now())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record outcome")
		return
	}

	log.Debug("outcome recorded",
		slog.String("item_id", id.String()),
		slog.Int64("version", state.Version))
	shared.RespondWithJSON(w, r, http.StatusOK, stateToResponse(state))
}

// DueItems handles GET /reviews/due.
func (h *ReviewHandler) DueItems(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	q := r.URL.Query()
	filter := store.DueFilter{
		PolicyType: domain.PolicyType(q.Get("policy_type")),
		Kind:       domain.ItemKind(q.Get("kind")),
	}

	states, err := h.service.DueItems(r.Context(), filter, limit, h.now())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list due items")
		return
	}

	resp := DueItemsResponse{Items: make([]ReviewStateResponse, 0, len(states)), Count: len(states)}
	for _, st := range states {
		resp.Items = append(resp.Items, stateToResponse(st))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// NextForChannel handles GET /channels/{channel}/next. It answers 204 when
// the channel has nothing left to present.
func (h *ReviewHandler) NextForChannel(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	sel, err := h.service.SelectNextForChannel(r.Context(), channel, h.now())
	if errors.Is(err, review.ErrNoCandidates) {
		logger.FromContextOrDefault(r.Context(), h.logger).
			Debug("no candidates in channel", slog.String("channel_id", channel))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to select next item")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NextItemResponse{
		Item: itemToResponse(sel.Item),
		Tier: string(sel.Tier),
	})
}
