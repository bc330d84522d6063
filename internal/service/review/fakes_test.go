package review

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/events"
	"github.com/phrazzld/relearn-api/internal/store"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory item and review state store with the same
// versioning contract as the real adapters.
type memStore struct {
	mu     sync.Mutex
	items  map[uuid.UUID]*domain.ReviewableItem
	states map[uuid.UUID]*domain.ReviewState

	// beforeSave runs inside Save before the version check; a non-nil
	// return aborts the save with that error.
	beforeSave func(state *domain.ReviewState) error
	saves      int
}

func newMemStore() *memStore {
	return &memStore{
		items:  map[uuid.UUID]*domain.ReviewableItem{},
		states: map[uuid.UUID]*domain.ReviewState{},
	}
}

func (m *memStore) Create(_ context.Context, item *domain.ReviewableItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; ok {
		return store.ErrDuplicate
	}
	c := *item
	m.items[item.ID] = &c
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ReviewableItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	c := *item
	return &c, nil
}

func (m *memStore) ListByChannel(_ context.Context, channelID string) ([]*domain.ReviewableItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ReviewableItem
	for _, item := range m.items {
		if item.ChannelID == channelID {
			c := *item
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return store.ErrItemNotFound
	}
	delete(m.items, id)
	delete(m.states, id)
	return nil
}

func (m *memStore) Get(_ context.Context, itemID uuid.UUID) (*domain.ReviewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[itemID]
	if !ok {
		return nil, store.ErrReviewStateNotFound
	}
	return st.Clone(), nil
}

func (m *memStore) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.ReviewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]*domain.ReviewState{}
	for _, id := range ids {
		if st, ok := m.states[id]; ok {
			out[id] = st.Clone()
		}
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, state *domain.ReviewState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.beforeSave != nil {
		if err := m.beforeSave(state); err != nil {
			return err
		}
	}
	var current int64
	if st, ok := m.states[state.ItemID]; ok {
		current = st.Version
	}
	if current != state.Version {
		return store.ErrVersionConflict
	}
	c := state.Clone()
	c.Version++
	m.states[state.ItemID] = c
	state.Version = c.Version
	return nil
}

func (m *memStore) ListDue(_ context.Context, filter store.DueFilter, now time.Time, limit int) ([]*domain.ReviewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ReviewState
	for _, st := range m.states {
		if st.IsDue(now) && filter.Matches(st) {
			out = append(out, st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextReviewAt.Equal(*out[j].NextReviewAt) {
			return out[i].NextReviewAt.Before(*out[j].NextReviewAt)
		}
		return out[i].ItemID.String() < out[j].ItemID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// MockReviewStateStore mocks store.ReviewStateStore.
type MockReviewStateStore struct {
	mock.Mock
}

func (m *MockReviewStateStore) Get(ctx context.Context, itemID uuid.UUID) (*domain.ReviewState, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewState), args.Error(1)
}

func (m *MockReviewStateStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.ReviewState, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*domain.ReviewState), args.Error(1)
}

func (m *MockReviewStateStore) Save(ctx context.Context, state *domain.ReviewState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockReviewStateStore) ListDue(
	ctx context.Context,
	filter store.DueFilter,
	now time.Time,
	limit int,
) ([]*domain.ReviewState, error) {
	args := m.Called(ctx, filter, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReviewState), args.Error(1)
}

// recordingEmitter collects emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (r *recordingEmitter) EmitEvent(_ context.Context, event *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}
