package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventSource reads persisted journal events.
type EventSource interface {
	EventsSince(ctx context.Context, tick uint64) ([]EventRecord, error)
}

// Reconstructor summarizes the persisted journal: what the coop did while
// nobody was watching.
type Reconstructor struct {
	source EventSource
}

// NewReconstructor creates a new journal reconstructor.
func NewReconstructor(source EventSource) *Reconstructor {
	return &Reconstructor{source: source}
}

// Recap is the aggregate of a stretch of journal.
type Recap struct {
	SinceTick       uint64       `json:"since_tick"`
	LastTick        uint64       `json:"last_tick"`
	Ticks           int          `json:"ticks"`
	Clutches        uint64       `json:"clutches"`
	ChicksHatched   uint64       `json:"chicks_hatched"`
	ChicksSettled   uint64       `json:"chicks_settled"`
	ActionsApplied  int          `json:"actions_applied"`
	ActionsRejected int          `json:"actions_rejected"`
	FlushFailures   int          `json:"flush_failures"`
	Events          []RecapEvent `json:"events,omitempty"`
}

// RecapEvent is one notable journal entry.
type RecapEvent struct {
	Tick    uint64 `json:"tick"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
	Impact  string `json:"impact"` // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// GenerateRecap folds every persisted event at or after sinceTick.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sinceTick uint64) (*Recap, error) {
	records, err := r.source.EventsSince(ctx, sinceTick)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	recap := &Recap{SinceTick: sinceTick}
	for _, rec := range records {
		payload := decodePayload(rec.Payload)
		recap.LastTick = max(recap.LastTick, rec.Tick)
		r.applyEvent(recap, rec.Type, payload)

		// commits are counted, not listed
		if rec.Type == "TICK_COMMITTED" {
			continue
		}
		recap.Events = append(recap.Events, RecapEvent{
			Tick:    rec.Tick,
			Type:    rec.Type,
			Summary: r.summarizeEvent(rec.Type, payload),
			Impact:  r.determineImpact(rec.Type),
		})
	}
	return recap, nil
}

func decodePayload(raw string) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload
}

func number(payload map[string]any, key string) uint64 {
	if v, ok := payload[key].(float64); ok && v > 0 {
		return uint64(v)
	}
	return 0
}

func (r *Reconstructor) applyEvent(recap *Recap, eventType string, payload map[string]any) {
	switch eventType {
	case "TICK_COMMITTED":
		recap.Ticks++
	case "CLUTCH_STARTED":
		recap.Clutches += number(payload, "clutches")
	case "EFFECT_DONE":
		recap.ChicksHatched += number(payload, "total")
	case "RECONCILED":
		recap.ChicksSettled += number(payload, "chicks")
	case "ACTION_APPLIED":
		recap.ActionsApplied++
	case "ACTION_REJECTED":
		recap.ActionsRejected++
	case "FLUSH_FAILED":
		recap.FlushFailures++
	}
}

func (r *Reconstructor) summarizeEvent(eventType string, payload map[string]any) string {
	switch eventType {
	case "CLUTCH_STARTED":
		return fmt.Sprintf("%d clutch(es) started, %d chicks incubating", number(payload, "clutches"), number(payload, "chicks"))
	case "EFFECT_DONE":
		return fmt.Sprintf("%d chicks hatched", number(payload, "total"))
	case "RECONCILED":
		return fmt.Sprintf("%d chicks left from a previous run were settled", number(payload, "chicks"))
	case "ACTION_APPLIED":
		return fmt.Sprintf("%v applied", payload["action"])
	case "ACTION_REJECTED":
		return fmt.Sprintf("%v rejected: %v", payload["action"], payload["reason"])
	case "FLUSH_FAILED":
		return fmt.Sprintf("flush failed: %v", payload["error"])
	default:
		return "something happened in the coop"
	}
}

func (r *Reconstructor) determineImpact(eventType string) string {
	switch eventType {
	case "ACTION_REJECTED", "FLUSH_FAILED":
		return "NEGATIVE"
	case "CLUTCH_STARTED", "EFFECT_DONE", "RECONCILED":
		return "POSITIVE"
	default:
		return "NEUTRAL"
	}
}
