// Package review implements the review operations exposed to the API layer:
// recording outcomes, querying the due queue, selecting the next item from a
// content pool and registering items.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/domain/selection"
	"github.com/phrazzld/relearn-api/internal/domain/srs"
	"github.com/phrazzld/relearn-api/internal/events"
	"github.com/phrazzld/relearn-api/internal/platform/logger"
	"github.com/phrazzld/relearn-api/internal/store"
	"github.com/sethvargo/go-retry"
)

// Options tunes the conflict retry loop of RecordOutcome.
type Options struct {
	// MaxConflictRetries is the number of retries after the first attempt.
	MaxConflictRetries int
	// RetryBaseDelay is the first backoff delay; later delays double.
	RetryBaseDelay time.Duration
}

// DefaultOptions returns three retries starting at 10ms.
func DefaultOptions() Options {
	return Options{MaxConflictRetries: 3, RetryBaseDelay: 10 * time.Millisecond}
}

// ItemView is an item together with its review state, which is nil before
// the first recorded outcome.
type ItemView struct {
	Item  *domain.ReviewableItem `json:"item"`
	State *domain.ReviewState    `json:"state"`
}

// Service coordinates the policy engine with the item and review state stores.
type Service struct {
	items    store.ItemStore
	states   store.ReviewStateStore
	engine   *srs.Engine
	selector *selection.Selector
	emitter  events.EventEmitter
	opts     Options
	logger   *slog.Logger
}

// NewService creates a Service. emitter may be nil; a nil selector uses the
// global random source.
func NewService(
	items store.ItemStore,
	states store.ReviewStateStore,
	engine *srs.Engine,
	selector *selection.Selector,
	emitter events.EventEmitter,
	opts Options,
	logger *slog.Logger,
) (*Service, error) {
	if items == nil {
		return nil, errors.New("item store cannot be nil")
	}
	if states == nil {
		return nil, errors.New("review state store cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("policy engine cannot be nil")
	}
	if opts.MaxConflictRetries < 0 {
		return nil, fmt.Errorf("max conflict retries must be non-negative, got %d", opts.MaxConflictRetries)
	}
	if opts.RetryBaseDelay <= 0 {
		return nil, fmt.Errorf("retry base delay must be positive, got %s", opts.RetryBaseDelay)
	}
	if selector == nil {
		selector = selection.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		items:    items,
		states:   states,
		engine:   engine,
		selector: selector,
		emitter:  emitter,
		opts:     opts,
		logger:   logger.With(slog.String("component", "review_service")),
	}, nil
}

// RecordOutcome applies outcome to the item's review state and persists the
// result. A missing state is created with the defaults of the item's policy.
//
// Validation errors (wrapping domain.ErrValidation) leave the store untouched.
// A lost optimistic-concurrency race reruns the whole load-apply-save cycle
// up to MaxConflictRetries times before ErrConcurrencyConflict is returned.
func (s *Service) RecordOutcome(
	ctx context.Context,
	itemID uuid.UUID,
	outcome srs.Outcome,
	now time.Time,
) (*domain.ReviewState, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("item_id", itemID.String()))

	if outcome == nil {
		return nil, srs.ErrNilOutcome
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			log.DebugContext(ctx, "outcome for unknown item")
			return nil, ErrItemNotFound
		}
		return nil, s.storeError(ctx, "record_outcome", "failed to load item", err)
	}

	now = now.UTC()
	attempts := 0
	var saved *domain.ReviewState

	backoff := retry.WithMaxRetries(uint64(s.opts.MaxConflictRetries), retry.NewExponential(s.opts.RetryBaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		current, err := s.states.Get(ctx, itemID)
		switch {
		case errors.Is(err, store.ErrReviewStateNotFound):
			current, err = domain.NewReviewState(item, now)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		next, err := s.engine.Apply(current, outcome, now)
		if err != nil {
			return err
		}

		if err := s.states.Save(ctx, next); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				log.DebugContext(ctx, "review state conflict, retrying", slog.Int("attempt", attempts))
				return retry.RetryableError(err)
			}
			return err
		}

		saved = next
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			log.InfoContext(ctx, "outcome rejected", slog.String("error", err.Error()))
			return nil, err
		case errors.Is(err, store.ErrVersionConflict):
			log.WarnContext(ctx, "giving up after repeated conflicts", slog.Int("attempts", attempts))
			return nil, fmt.Errorf("%w: item %s after %d attempts", ErrConcurrencyConflict, itemID, attempts)
		case errors.Is(err, store.ErrItemNotFound):
			return nil, ErrItemNotFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, s.storeError(ctx, "record_outcome", "failed to persist review state", err)
		}
	}

	log.InfoContext(ctx, "outcome recorded",
		slog.String("policy_type", string(saved.PolicyType)),
		slog.String("status", string(saved.Status)),
		slog.Int64("version", saved.Version),
		slog.Int("attempts", attempts))

	s.emitOutcome(ctx, saved, now)
	return saved, nil
}

// DueItems returns states whose next review time is at or before now, earliest
// first. limit 0 returns an empty slice without touching the store.
func (s *Service) DueItems(
	ctx context.Context,
	filter store.DueFilter,
	limit int,
	now time.Time,
) ([]*domain.ReviewState, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	if filter.PolicyType != "" && !filter.PolicyType.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrUnknownPolicy, string(filter.PolicyType))
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrUnknownKind, string(filter.Kind))
	}
	if limit == 0 {
		return []*domain.ReviewState{}, nil
	}

	states, err := s.states.ListDue(ctx, filter, now.UTC(), limit)
	if err != nil {
		return nil, s.storeError(ctx, "due_items", "failed to list due states", err)
	}

	due := states[:0]
	for _, st := range states {
		if st.IsDue(now) {
			due = append(due, st)
		}
	}
	return due, nil
}

// SelectNext picks the next item to present from pool using the stored states
// of its items. It returns ErrNoCandidates when nothing qualifies.
func (s *Service) SelectNext(
	ctx context.Context,
	pool []*domain.ReviewableItem,
	now time.Time,
) (selection.Selection, error) {
	if len(pool) == 0 {
		return selection.Selection{}, ErrNoCandidates
	}

	ids := make([]uuid.UUID, 0, len(pool))
	for _, item := range pool {
		if item != nil {
			ids = append(ids, item.ID)
		}
	}

	states, err := s.states.GetMany(ctx, ids)
	if err != nil {
		return selection.Selection{}, s.storeError(ctx, "select_next", "failed to load pool states", err)
	}

	sel, ok := s.selector.SelectNext(pool, states, now.UTC())
	if !ok {
		return selection.Selection{}, ErrNoCandidates
	}

	logger.FromContextOrDefault(ctx, s.logger).DebugContext(ctx, "selected next item",
		slog.String("item_id", sel.Item.ID.String()),
		slog.String("tier", string(sel.Tier)),
		slog.Int("pool_size", len(pool)))
	return sel, nil
}

// SelectNextForChannel runs SelectNext over every item in a channel's pool.
func (s *Service) SelectNextForChannel(
	ctx context.Context,
	channelID string,
	now time.Time,
) (selection.Selection, error) {
	pool, err := s.items.ListByChannel(ctx, channelID)
	if err != nil {
		return selection.Selection{}, s.storeError(ctx, "select_next", "failed to load channel pool", err)
	}
	return s.SelectNext(ctx, pool, now)
}

// CreateItem registers a new reviewable item.
func (s *Service) CreateItem(
	ctx context.Context,
	kind domain.ItemKind,
	channelID, title string,
	now time.Time,
) (*domain.ReviewableItem, error) {
	item, err := domain.NewReviewableItem(kind, channelID, title, now)
	if err != nil {
		return nil, err
	}

	if err := s.items.Create(ctx, item); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		return nil, s.storeError(ctx, "create_item", "failed to store item", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).InfoContext(ctx, "item created",
		slog.String("item_id", item.ID.String()),
		slog.String("kind", string(item.Kind)))
	return item, nil
}

// GetItem returns an item and its review state, if any.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*ItemView, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, s.storeError(ctx, "get_item", "failed to load item", err)
	}

	state, err := s.states.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrReviewStateNotFound) {
			return nil, s.storeError(ctx, "get_item", "failed to load review state", err)
		}
		state = nil
	}
	return &ItemView{Item: item, State: state}, nil
}

// DeleteItem removes an item together with its review state, which also takes
// it out of the due queue and its channel pool.
func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if err := s.items.Delete(ctx, id); err != nil {
		if store.IsNotFoundError(err) {
			return ErrItemNotFound
		}
		return s.storeError(ctx, "delete_item", "failed to delete item", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).InfoContext(ctx, "item deleted",
		slog.String("item_id", id.String()))
	return nil
}

// ListChannel returns the items in a channel's content pool.
func (s *Service) ListChannel(ctx context.Context, channelID string) ([]*domain.ReviewableItem, error) {
	items, err := s.items.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, s.storeError(ctx, "list_channel", "failed to list items", err)
	}
	return items, nil
}

// storeError classifies an unexpected store failure.
func (s *Service) storeError(ctx context.Context, op, msg string, err error) error {
	logger.FromContextOrDefault(ctx, s.logger).ErrorContext(ctx, msg,
		slog.String("operation", op),
		slog.String("error", err.Error()))

	if errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return NewServiceError(op, msg, err)
}

func (s *Service) emitOutcome(ctx context.Context, state *domain.ReviewState, now time.Time) {
	if s.emitter == nil {
		return
	}

	event, err := events.NewEvent(events.TypeOutcomeRecorded, events.OutcomeRecorded{
		ItemID:       state.ItemID,
		Kind:         string(state.Kind),
		PolicyType:   string(state.PolicyType),
		Status:       string(state.Status),
		NextReviewAt: state.NextReviewAt,
		Version:      state.Version,
	}, now)
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).WarnContext(ctx, "failed to emit outcome event",
			slog.String("item_id", state.ItemID.String()),
			slog.String("error", err.Error()))
	}
}
