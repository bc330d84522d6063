package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/platform/logger"
	"github.com/phrazzld/relearn-api/internal/store"
)

const reviewStateColumns = `item_id, kind, policy_type, status, ease_factor, interval_days,
	repetition_count, repetition_level, next_review_at, last_reviewed_at,
	total_review_count, total_review_duration_seconds, in_low_priority_pool,
	version, created_at, updated_at`

// ReviewStateStore implements store.ReviewStateStore on PostgreSQL.
type ReviewStateStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.ReviewStateStore = (*ReviewStateStore)(nil)

// NewReviewStateStore creates a ReviewStateStore. A nil logger selects slog.Default.
func NewReviewStateStore(db *sql.DB, logger *slog.Logger) *ReviewStateStore {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewStateStore{
		db:     db,
		logger: logger.With(slog.String("component", "review_state_store")),
	}
}

// Get implements store.ReviewStateStore.Get.
func (s *ReviewStateStore) Get(ctx context.Context, itemID uuid.UUID) (*domain.ReviewState, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + reviewStateColumns + ` FROM review_states WHERE item_id = $1`
	state, err := scanReviewState(s.db.QueryRowContext(ctx, query, itemID))
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrNotFound) {
			return nil, store.ErrReviewStateNotFound
		}
		log.ErrorContext(ctx, "failed to get review state",
			slog.String("error", err.Error()),
			slog.String("item_id", itemID.String()))
		return nil, mapped
	}
	return state, nil
}

// GetMany implements store.ReviewStateStore.GetMany.
func (s *ReviewStateStore) GetMany(
	ctx context.Context,
	itemIDs []uuid.UUID,
) (map[uuid.UUID]*domain.ReviewState, error) {
	result := make(map[uuid.UUID]*domain.ReviewState, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}

	log := logger.FromContextOrDefault(ctx, s.logger)

	ids := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		ids[i] = id.String()
	}

	query := `SELECT ` + reviewStateColumns + ` FROM review_states WHERE item_id = ANY($1::uuid[])`
	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		log.ErrorContext(ctx, "failed to load review states",
			slog.String("error", err.Error()),
			slog.Int("count", len(itemIDs)))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		state, err := scanReviewState(rows)
		if err != nil {
			return nil, MapError(err)
		}
		result[state.ItemID] = state
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return result, nil
}

// Save implements store.ReviewStateStore.Save. The stored version is locked
// and compared with state.Version inside one transaction.
func (s *ReviewStateStore) Save(ctx context.Context, state *domain.ReviewState) error {
	if state == nil {
		return fmt.Errorf("%w: review state cannot be nil", store.ErrInvalidEntity)
	}

	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("item_id", state.ItemID.String()),
		slog.Int64("expected_version", state.Version))

	if err := state.Validate(); err != nil {
		log.WarnContext(ctx, "review state validation failed during save",
			slog.String("error", err.Error()))
		return err
	}

	expected := state.Version
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM review_states WHERE item_id = $1 FOR UPDATE`,
			state.ItemID,
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return MapError(err)
		}

		if current != expected {
			return fmt.Errorf("%w: item %s is at version %d, write expected %d",
				store.ErrVersionConflict, state.ItemID, current, expected)
		}

		if expected == 0 {
			return insertReviewState(ctx, tx, state)
		}
		return updateReviewState(ctx, tx, state)
	})
	if err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrVersionConflict) {
			log.InfoContext(ctx, "review state version conflict", slog.String("error", err.Error()))
		} else {
			log.ErrorContext(ctx, "failed to save review state", slog.String("error", err.Error()))
		}
		return err
	}

	state.Version = expected + 1
	log.DebugContext(ctx, "review state saved", slog.Int64("version", state.Version))
	return nil
}

func insertReviewState(ctx context.Context, tx *sql.Tx, state *domain.ReviewState) error {
	query := `INSERT INTO review_states (` + reviewStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.ExecContext(ctx, query,
		state.ItemID,
		string(state.Kind),
		string(state.PolicyType),
		string(state.Status),
		state.EaseFactor,
		state.IntervalDays,
		state.RepetitionCount,
		state.RepetitionLevel,
		nullTime(state.NextReviewAt),
		nullTime(state.LastReviewedAt),
		state.TotalReviewCount,
		state.TotalReviewDurationSeconds,
		state.InLowPriorityPool,
		state.Version+1,
		state.CreatedAt.UTC(),
		state.UpdatedAt.UTC(),
	)
	if err == nil {
		return nil
	}

	// A concurrent first save won the insert race.
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: item %s was created concurrently", store.ErrVersionConflict, state.ItemID)
	}
	if IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: item %s", store.ErrItemNotFound, state.ItemID)
	}
	return MapError(err)
}

func updateReviewState(ctx context.Context, tx *sql.Tx, state *domain.ReviewState) error {
	query := `
		UPDATE review_states SET
			status = $2,
			ease_factor = $3,
			interval_days = $4,
			repetition_count = $5,
			repetition_level = $6,
			next_review_at = $7,
			last_reviewed_at = $8,
			total_review_count = $9,
			total_review_duration_seconds = $10,
			in_low_priority_pool = $11,
			version = $12,
			updated_at = $13
		WHERE item_id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		state.ItemID,
		string(state.Status),
		state.EaseFactor,
		state.IntervalDays,
		state.RepetitionCount,
		state.RepetitionLevel,
		nullTime(state.NextReviewAt),
		nullTime(state.LastReviewedAt),
		state.TotalReviewCount,
		state.TotalReviewDurationSeconds,
		state.InLowPriorityPool,
		state.Version+1,
		state.UpdatedAt.UTC(),
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrVersionConflict)
}

// ListDue implements store.ReviewStateStore.ListDue.
func (s *ReviewStateStore) ListDue(
	ctx context.Context,
	filter store.DueFilter,
	now time.Time,
	limit int,
) ([]*domain.ReviewState, error) {
	if limit <= 0 {
		return []*domain.ReviewState{}, nil
	}

	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + reviewStateColumns + `
		FROM review_states
		WHERE next_review_at IS NOT NULL
			AND next_review_at <= $1
			AND ($2::text = '' OR policy_type = $2::text)
			AND ($3::text = '' OR kind = $3::text)
		ORDER BY next_review_at ASC, item_id ASC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query,
		now.UTC(),
		string(filter.PolicyType),
		string(filter.Kind),
		limit,
	)
	if err != nil {
		log.ErrorContext(ctx, "failed to list due review states",
			slog.String("error", err.Error()),
			slog.String("policy_type", string(filter.PolicyType)),
			slog.String("kind", string(filter.Kind)))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	states := make([]*domain.ReviewState, 0, limit)
	for rows.Next() {
		state, err := scanReviewState(rows)
		if err != nil {
			return nil, MapError(err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return states, nil
}

func scanReviewState(row rowScanner) (*domain.ReviewState, error) {
	var (
		state                      domain.ReviewState
		kind, policyType, status   string
		nextReviewAt, lastReviewed sql.NullTime
	)
	err := row.Scan(
		&state.ItemID,
		&kind,
		&policyType,
		&status,
		&state.EaseFactor,
		&state.IntervalDays,
		&state.RepetitionCount,
		&state.RepetitionLevel,
		&nextReviewAt,
		&lastReviewed,
		&state.TotalReviewCount,
		&state.TotalReviewDurationSeconds,
		&state.InLowPriorityPool,
		&state.Version,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.Kind = domain.ItemKind(kind)
	state.PolicyType = domain.PolicyType(policyType)
	state.Status = domain.ReviewStatus(status)
	state.NextReviewAt = timePtr(nextReviewAt)
	state.LastReviewedAt = timePtr(lastReviewed)
	state.CreatedAt = state.CreatedAt.UTC()
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
