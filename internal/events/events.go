package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeOutcomeRecorded   = "review.outcome_recorded"
	TypeDueItemsAvailable = "review.due_items_available"
)

// Event is an envelope carrying a JSON payload.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent creates an event of the given type, serializing payload to JSON.
func NewEvent(eventType string, payload any, now time.Time) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: now.UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// OutcomeRecorded is the payload of TypeOutcomeRecorded.
type OutcomeRecorded struct {
	ItemID       uuid.UUID  `json:"item_id"`
	Kind         string     `json:"kind"`
	PolicyType   string     `json:"policy_type"`
	Status       string     `json:"status"`
	NextReviewAt *time.Time `json:"next_review_at"`
	Version      int64      `json:"version"`
}

// DueItemsAvailable is the payload of TypeDueItemsAvailable.
// Counts are capped at the poller's batch limit.
type DueItemsAvailable struct {
	Counts    map[string]int `json:"counts"`
	CheckedAt time.Time      `json:"checked_at"`
}

// EventHandler processes events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter publishes events to interested handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *Event) error
}
