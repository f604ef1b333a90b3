// Package events provides the coop journal: an append-only, in-memory log of
// everything notable the engine did, optionally written through to storage.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a journal event.
type EventType string

const (
	EventTypeTickCommitted  EventType = "TICK_COMMITTED"
	EventTypeClutchStarted  EventType = "CLUTCH_STARTED"
	EventTypeEffectDone     EventType = "EFFECT_DONE"
	EventTypeActionApplied  EventType = "ACTION_APPLIED"
	EventTypeActionRejected EventType = "ACTION_REJECTED"
	EventTypeFlushFailed    EventType = "FLUSH_FAILED"
	EventTypeReconciled     EventType = "RECONCILED"
)

// GameEvent is an immutable journal record.
type GameEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Tick      uint64    `json:"tick"`
	ActorID   string    `json:"actor_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// EventLog is the in-memory append-only journal.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister EventPersister
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]GameEvent, 0, 256),
		persister: persister,
	}
}

// Append stamps and records an event. The in-memory append always succeeds;
// the returned error comes from the persister, if any.
func (el *EventLog) Append(event GameEvent) (GameEvent, error) {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	el.mu.Unlock()

	if el.persister != nil {
		return event, el.persister.Append(event)
	}
	return event, nil
}

// Len returns the number of recorded events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Since returns the events recorded after the first n, for pollers that
// remember how far they have read.
func (el *EventLog) Since(n int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if n >= len(el.events) {
		return nil
	}
	n = max(n, 0)
	out := make([]GameEvent, len(el.events)-n)
	copy(out, el.events[n:])
	return out
}

// Filter returns the events of type typ (any type when empty) at or after
// tick since.
func (el *EventLog) Filter(typ EventType, since uint64) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if typ != "" && e.Type != typ {
			continue
		}
		if e.Tick < since {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []GameEvent {
	return el.Since(0)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
