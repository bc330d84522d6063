// Package selection picks the next item to present from a channel's content pool.
//
// Candidates are grouped into priority tiers and the first non-empty tier wins:
// overdue comprehension retries, then unseen items, then anything not yet
// mastered. Ties within a tier are broken uniformly at random.
package selection

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/relearn-api/internal/domain"
	"github.com/phrazzld/relearn-api/internal/domain/srs"
)

// Tier identifies the priority group a selection came from.
type Tier string

// Priority tiers in precedence order.
const (
	TierRetry    Tier = "retry"
	TierUnseen   Tier = "unseen"
	TierFallback Tier = "fallback"
)

// Selection is the selector's answer.
type Selection struct {
	Item *domain.ReviewableItem
	Tier Tier
}

// Selector chooses the next candidate. It is safe for concurrent use when its
// random source is.
type Selector struct {
	rng srs.RandomSource
}

// New creates a Selector. A nil rng uses the goroutine-safe global source.
func New(rng srs.RandomSource) *Selector {
	if rng == nil {
		rng = srs.DefaultSource
	}
	return &Selector{rng: rng}
}

// Tiers partitions pool into the three candidate tiers. An item lands in the
// highest tier it qualifies for; mastered items land nowhere. Nil entries are skipped.
func Tiers(
	pool []*domain.ReviewableItem,
	states map[uuid.UUID]*domain.ReviewState,
	now time.Time,
) (retry, unseen, fallback []*domain.ReviewableItem) {
	for _, item := range pool {
		if item == nil {
			continue
		}
		state := states[item.ID]
		switch {
		case isRetry(state, now):
			retry = append(retry, item)
		case state == nil || state.Status == domain.StatusUnwatched:
			unseen = append(unseen, item)
		case state.Status != domain.StatusMastered:
			fallback = append(fallback, item)
		}
	}
	return retry, unseen, fallback
}

// SelectNext returns the next item to present and false when no candidate exists:
// the pool is empty or every item is mastered.
func (s *Selector) SelectNext(
	pool []*domain.ReviewableItem,
	states map[uuid.UUID]*domain.ReviewState,
	now time.Time,
) (Selection, bool) {
	retry, unseen, fallback := Tiers(pool, states, now)

	for _, tier := range []struct {
		name  Tier
		items []*domain.ReviewableItem
	}{
		{TierRetry, retry},
		{TierUnseen, unseen},
		{TierFallback, fallback},
	} {
		if len(tier.items) == 0 {
			continue
		}
		return Selection{Item: tier.items[s.rng.IntN(len(tier.items))], Tier: tier.name}, true
	}
	return Selection{}, false
}

// isRetry reports whether state is an overdue binary-comprehension retry.
func isRetry(state *domain.ReviewState, now time.Time) bool {
	return state != nil &&
		state.PolicyType == domain.PolicyBinaryComprehension &&
		state.IsDue(now)
}
