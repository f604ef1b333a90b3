package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
)

type eventAppender interface {
	AppendEvent(ctx context.Context, rec storage.EventRecord) error
}

// journalPersister writes journal events through to the events table.
type journalPersister struct {
	store   eventAppender
	timeout time.Duration
}

func (p *journalPersister) Append(event events.GameEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.store.AppendEvent(ctx, storage.EventRecord{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		Type:      string(event.Type),
		Tick:      event.Tick,
		Payload:   string(payload),
	})
}
