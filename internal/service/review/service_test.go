package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/domain/selection"
	"github.com/phrazzld/relearn-api/internal/domain/srs"
	"github.com/phrazzld/relearn-api/internal/events"
	"github.com/phrazzld/relearn-api/internal/platform/logger"
	"github.com/phrazzld/relearn-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fixedSource int

func (f fixedSource) IntN(n int) int { return int(f) % n }

func fastOptions(retries int) Options {
	return Options{MaxConflictRetries: retries, RetryBaseDelay: time.Millisecond}
}

func newTestService(t *testing.T, states store.ReviewStateStore, items store.ItemStore, opts Options) (*Service, *recordingEmitter) {
	t.Helper()
	engine, err := srs.NewEngine(srs.NewDefaultParams(), fixedSource(3))
	require.NoError(t, err)
	l, _ := logger.NewTestLogger()
	emitter := &recordingEmitter{}
	svc, err := NewService(items, states, engine, selection.New(fixedSource(0)), emitter, opts, l)
	require.NoError(t, err)
	return svc, emitter
}

func seedItem(t *testing.T, m *memStore, kind domain.ItemKind, channel string) *domain.ReviewableItem {
	t.Helper()
	item, err := domain.NewReviewableItem(kind, channel, "", testNow)
	require.NoError(t, err)
	require.NoError(t, m.Create(context.Background(), item))
	return item
}

func TestNewService(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	engine, err := srs.NewEngine(nil, nil)
	require.NoError(t, err)

	_, err = NewService(nil, m, engine, nil, nil, DefaultOptions(), nil)
	assert.Error(t, err)
	_, err = NewService(m, nil, engine, nil, nil, DefaultOptions(), nil)
	assert.Error(t, err)
	_, err = NewService(m, m, nil, nil, nil, DefaultOptions(), nil)
	assert.Error(t, err)
	_, err = NewService(m, m, engine, nil, nil, Options{MaxConflictRetries: -1, RetryBaseDelay: time.Millisecond}, nil)
	assert.Error(t, err)
	_, err = NewService(m, m, engine, nil, nil, Options{MaxConflictRetries: 3}, nil)
	assert.Error(t, err)

	svc, err := NewService(m, m, engine, nil, nil, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestRecordOutcome_CreatesStateOnFirstReview(t *testing.T) {
	t.Parallel()

	t.Run("flashcard perfect recall", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, emitter := newTestService(t, m, m, fastOptions(3))
		item := seedItem(t, m, domain.KindFlashcard, "")

		state, err := svc.RecordOutcome(context.Background(), item.ID, srs.QualityOutcome{Quality: 5}, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, state.IntervalDays)
		assert.Equal(t, 1, state.RepetitionCount)
		assert.InDelta(t, 2.6, state.EaseFactor, 1e-9)
		assert.Equal(t, int64(1), state.Version)
		assert.Equal(t, domain.KindFlashcard, state.Kind)

		require.Len(t, emitter.events, 1)
		assert.Equal(t, events.TypeOutcomeRecorded, emitter.events[0].Type)
		var payload events.OutcomeRecorded
		require.NoError(t, emitter.events[0].UnmarshalPayload(&payload))
		assert.Equal(t, item.ID, payload.ItemID)
		assert.Equal(t, int64(1), payload.Version)
	})

	t.Run("video review first normal starts at ladder level 0", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, m, fastOptions(3))
		item := seedItem(t, m, domain.KindVideoReview, "ch-1")

		state, err := svc.RecordOutcome(context.Background(), item.ID,
			srs.DifficultyOutcome{Difficulty: srs.DifficultyNormal, SessionDurationSeconds: 120}, testNow)
		require.NoError(t, err)
		assert.Equal(t, 0, state.RepetitionLevel)
		require.NotNil(t, state.NextReviewAt)
		assert.Equal(t, testNow.Add(day), *state.NextReviewAt)
	})

	t.Run("video progress understood", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, m, fastOptions(3))
		item := seedItem(t, m, domain.KindVideoProgress, "ch-1")

		state, err := svc.RecordOutcome(context.Background(), item.ID, srs.ComprehensionOutcome{Understood: true}, testNow)
		require.NoError(t, err)
		assert.Nil(t, state.NextReviewAt)
		assert.True(t, state.InLowPriorityPool)
	})
}

func TestRecordOutcome_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    domain.ItemKind
		outcome srs.Outcome
		unknown bool
		wantErr error
	}{
		{
			name:    "unknown item",
			kind:    domain.KindFlashcard,
			outcome: srs.QualityOutcome{Quality: 4},
			unknown: true,
			wantErr: ErrItemNotFound,
		},
		{
			name:    "quality out of range",
			kind:    domain.KindFlashcard,
			outcome: srs.QualityOutcome{Quality: 6},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "short session",
			kind:    domain.KindVideoReview,
			outcome: srs.DifficultyOutcome{Difficulty: srs.DifficultyNormal, SessionDurationSeconds: 29},
			wantErr: srs.ErrSessionTooShort,
		},
		{
			name:    "outcome for another policy",
			kind:    domain.KindVideoProgress,
			outcome: srs.QualityOutcome{Quality: 3},
			wantErr: srs.ErrOutcomeMismatch,
		},
		{
			name:    "nil outcome",
			kind:    domain.KindFlashcard,
			outcome: nil,
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMemStore()
			svc, emitter := newTestService(t, m, m, fastOptions(3))
			item := seedItem(t, m, tt.kind, "")
			id := item.ID
			if tt.unknown {
				id = uuid.New()
			}

			state, err := svc.RecordOutcome(context.Background(), id, tt.outcome, testNow)
			assert.Nil(t, state)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, m.saveCount(), "rejected outcomes must not write")
			assert.Empty(t, emitter.events)
		})
	}
}

func TestRecordOutcome_ShortSessionLeavesStoredStateUntouched(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	svc, _ := newTestService(t, m, m, fastOptions(3))
	item := seedItem(t, m, domain.KindVideoReview, "")

	_, err := svc.RecordOutcome(context.Background(), item.ID,
		srs.DifficultyOutcome{Difficulty: srs.DifficultyNormal, SessionDurationSeconds: 300}, testNow)
	require.NoError(t, err)
	before, err := m.Get(context.Background(), item.ID)
	require.NoError(t, err)

	_, err = svc.RecordOutcome(context.Background(), item.ID,
		srs.DifficultyOutcome{Difficulty: srs.DifficultyDifficult, SessionDurationSeconds: 10}, testNow.Add(day))
	require.ErrorIs(t, err, domain.ErrValidation)

	after, err := m.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecordOutcome_RetriesConflicts(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	svc, _ := newTestService(t, m, m, fastOptions(3))
	item := seedItem(t, m, domain.KindFlashcard, "")

	failures := 2
	m.beforeSave = func(*domain.ReviewState) error {
		if failures > 0 {
			failures--
			return store.ErrVersionConflict
		}
		return nil
	}

	state, err := svc.RecordOutcome(context.Background(), item.ID, srs.QualityOutcome{Quality: 4}, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Version)
	assert.Equal(t, 3, m.saveCount())
}

func TestRecordOutcome_GivesUpAfterBoundedRetries(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	svc, emitter := newTestService(t, m, m, fastOptions(3))
	item := seedItem(t, m, domain.KindFlashcard, "")
	m.beforeSave = func(*domain.ReviewState) error { return store.ErrVersionConflict }

	_, err := svc.RecordOutcome(context.Background(), item.ID, srs.QualityOutcome{Quality: 4}, testNow)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 4, m.saveCount(), "one attempt plus three retries")
	assert.Empty(t, emitter.events)
}

func TestRecordOutcome_ConcurrentWritersLoseNoUpdates(t *testing.T) {
	t.Parallel()

	const writers = 10
	m := newMemStore()
	svc, _ := newTestService(t, m, m, fastOptions(writers))
	item := seedItem(t, m, domain.KindFlashcard, "")

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordOutcome(context.Background(), item.ID, srs.QualityOutcome{Quality: 4}, testNow)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	final, err := m.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, final.RepetitionCount)
	assert.Equal(t, int64(writers), final.Version)
}

func TestRecordOutcome_StoreUnavailableIsNotRetried(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	item := seedItem(t, m, domain.KindFlashcard, "")

	states := new(MockReviewStateStore)
	states.On("Get", mock.Anything, item.ID).Return(nil, store.ErrUnavailable).Once()

	svc, _ := newTestService(t, states, m, fastOptions(3))
	_, err := svc.RecordOutcome(context.Background(), item.ID, srs.QualityOutcome{Quality: 4}, testNow)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	states.AssertExpectations(t)
	states.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRecordOutcome_EmitFailureDoesNotFailWrite(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	svc, emitter := newTestService(t, m, m, fastOptions(3))
	emitter.err = errors.New("bus down")
	item := seedItem(t, m, domain.KindFlashcard, "")

	state, err := svc.RecordOutcome(context.Background(), item.ID, srs.QualityOutcome{Quality: 3}, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Version)
}

func TestDueItems(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	svc, _ := newTestService(t, m, m, fastOptions(3))

	ids := map[string]uuid.UUID{}
	for name, offset := range map[string]time.Duration{"t-3": -3 * day, "t-1": -day, "t+1": day} {
		item := seedItem(t, m, domain.KindFlashcard, "")
		state, err := domain.NewReviewState(item, testNow)
		require.NoError(t, err)
		next := testNow.Add(offset)
		state.NextReviewAt = &next
		require.NoError(t, m.Save(context.Background(), state))
		ids[name] = item.ID
	}
	unscheduled := seedItem(t, m, domain.KindVideoProgress, "")
	state, err := domain.NewReviewState(unscheduled, testNow)
	require.NoError(t, err)
	require.NoError(t, m.Save(context.Background(), state))

	t.Run("earliest first and limited", func(t *testing.T) {
		due, err := svc.DueItems(context.Background(), store.DueFilter{}, 2, testNow)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, ids["t-3"], due[0].ItemID)
		assert.Equal(t, ids["t-1"], due[1].ItemID)
	})

	t.Run("never returns unscheduled or future items", func(t *testing.T) {
		due, err := svc.DueItems(context.Background(), store.DueFilter{}, 100, testNow)
		require.NoError(t, err)
		assert.Len(t, due, 2)
		for _, st := range due {
			require.NotNil(t, st.NextReviewAt)
			assert.False(t, st.NextReviewAt.After(testNow))
		}
	})

	t.Run("policy filter", func(t *testing.T) {
		due, err := svc.DueItems(context.Background(),
			store.DueFilter{PolicyType: domain.PolicyTieredDifficulty}, 100, testNow)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("zero limit", func(t *testing.T) {
		due, err := svc.DueItems(context.Background(), store.DueFilter{}, 0, testNow)
		require.NoError(t, err)
		assert.NotNil(t, due)
		assert.Empty(t, due)
	})

	t.Run("negative limit", func(t *testing.T) {
		_, err := svc.DueItems(context.Background(), store.DueFilter{}, -1, testNow)
		assert.ErrorIs(t, err, ErrInvalidLimit)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("unknown filter values", func(t *testing.T) {
		_, err := svc.DueItems(context.Background(), store.DueFilter{PolicyType: "leitner"}, 5, testNow)
		assert.ErrorIs(t, err, domain.ErrUnknownPolicy)
		_, err = svc.DueItems(context.Background(), store.DueFilter{Kind: "podcast"}, 5, testNow)
		assert.ErrorIs(t, err, domain.ErrUnknownKind)
	})
}

func TestDueItems_ZeroLimitSkipsStore(t *testing.T) {
	t.Parallel()

	states := new(MockReviewStateStore)
	svc, _ := newTestService(t, states, newMemStore(), fastOptions(3))

	due, err := svc.DueItems(context.Background(), store.DueFilter{}, 0, testNow)
	require.NoError(t, err)
	assert.Empty(t, due)
	states.AssertNotCalled(t, "ListDue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSelectNextForChannel(t *testing.T) {
	t.Parallel()

	t.Run("empty channel", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, m, fastOptions(3))

		_, err := svc.SelectNextForChannel(context.Background(), "nothing-here", testNow)
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("overdue retry surfaces before unseen content", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, m, fastOptions(3))

		watched := seedItem(t, m, domain.KindVideoProgress, "ch-1")
		for range 3 {
			seedItem(t, m, domain.KindVideoProgress, "ch-1")
		}

		_, err := svc.RecordOutcome(context.Background(), watched.ID, srs.ComprehensionOutcome{Understood: false}, testNow)
		require.NoError(t, err)

		sel, err := svc.SelectNextForChannel(context.Background(), "ch-1", testNow.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, selection.TierUnseen, sel.Tier)

		sel, err = svc.SelectNextForChannel(context.Background(), "ch-1", testNow.Add(2*day))
		require.NoError(t, err)
		assert.Equal(t, selection.TierRetry, sel.Tier)
		assert.Equal(t, watched.ID, sel.Item.ID)
	})

	t.Run("fully mastered pool", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, m, fastOptions(3))
		item := seedItem(t, m, domain.KindVideoReview, "ch-2")

		_, err := svc.RecordOutcome(context.Background(), item.ID,
			srs.DifficultyOutcome{Difficulty: srs.DifficultyEasy, SessionDurationSeconds: 60}, testNow)
		require.NoError(t, err)

		_, err = svc.SelectNextForChannel(context.Background(), "ch-2", testNow)
		assert.ErrorIs(t, err, ErrNoCandidates)
	})
}

func TestItemRegistry(t *testing.T) {
	t.Parallel()

	m := newMemStore()
	svc, _ := newTestService(t, m, m, fastOptions(3))
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, domain.KindVideoReview, " ch-7 ", "Lecture 1", testNow)
	require.NoError(t, err)
	assert.Equal(t, "ch-7", item.ChannelID)

	view, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, view.Item.ID)
	assert.Nil(t, view.State)

	_, err = svc.RecordOutcome(ctx, item.ID,
		srs.DifficultyOutcome{Difficulty: srs.DifficultyNormal, SessionDurationSeconds: 45}, testNow)
	require.NoError(t, err)

	view, err = svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, view.State)
	assert.Equal(t, 1, view.State.TotalReviewCount)

	items, err := svc.ListChannel(ctx, "ch-7")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = svc.GetItem(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = svc.CreateItem(ctx, "podcast", "ch-7", "", testNow)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

// unavailableItems fails every Delete as if the backend were unreachable.
type unavailableItems struct {
	*memStore
}

func (unavailableItems) Delete(context.Context, uuid.UUID) error {
	return store.ErrUnavailable
}

func TestDeleteItem(t *testing.T) {
	t.Parallel()

	t.Run("removes item state and due entry", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, m, fastOptions(3))
		ctx := context.Background()
		item := seedItem(t, m, domain.KindFlashcard, "ch-1")

		_, err := svc.RecordOutcome(ctx, item.ID, srs.QualityOutcome{Quality: 4}, testNow)
		require.NoError(t, err)

		require.NoError(t, svc.DeleteItem(ctx, item.ID))

		_, err = svc.GetItem(ctx, item.ID)
		assert.ErrorIs(t, err, ErrItemNotFound)
		due, err := svc.DueItems(ctx, store.DueFilter{}, 10, testNow.Add(2*day))
		require.NoError(t, err)
		assert.Empty(t, due)
		items, err := svc.ListChannel(ctx, "ch-1")
		require.NoError(t, err)
		assert.Empty(t, items)

		_, err = svc.RecordOutcome(ctx, item.ID, srs.QualityOutcome{Quality: 4}, testNow)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("unknown item", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, m, fastOptions(3))

		assert.ErrorIs(t, svc.DeleteItem(context.Background(), uuid.New()), ErrItemNotFound)
	})

	t.Run("store unavailable", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		svc, _ := newTestService(t, m, unavailableItems{m}, fastOptions(3))
		item := seedItem(t, m, domain.KindFlashcard, "ch-1")

		err := svc.DeleteItem(context.Background(), item.ID)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		_, err = m.GetByID(context.Background(), item.ID)
		assert.NoError(t, err)
	})
}
