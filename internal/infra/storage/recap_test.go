package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructor_GenerateRecap(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []EventRecord{
		{ID: "1", Type: "RECONCILED", Tick: 0, Payload: `{"chicks":4}`},
		{ID: "2", Type: "TICK_COMMITTED", Tick: 1, Payload: `{"state":{}}`},
		{ID: "3", Type: "CLUTCH_STARTED", Tick: 2, Payload: `{"clutches":2,"chicks":20}`},
		{ID: "4", Type: "TICK_COMMITTED", Tick: 2, Payload: `{}`},
		{ID: "5", Type: "ACTION_REJECTED", Tick: 3, Payload: `{"action":"build_nest","reason":"needs 10 eggs"}`},
		{ID: "6", Type: "EFFECT_DONE", Tick: 9, Payload: `{"total":20,"moved":14}`},
		{ID: "7", Type: "FLUSH_FAILED", Tick: 9, Payload: `{"error":"disk full"}`},
		{ID: "8", Type: "ACTION_APPLIED", Tick: 9, Payload: `{"action":"lay_egg"}`},
	}
	for i, rec := range records {
		rec.Timestamp = now.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, s.AppendEvent(ctx, rec))
	}

	recap, err := NewReconstructor(s).GenerateRecap(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), recap.LastTick)
	assert.Equal(t, 2, recap.Ticks)
	assert.Equal(t, uint64(2), recap.Clutches)
	assert.Equal(t, uint64(20), recap.ChicksHatched)
	assert.Equal(t, uint64(4), recap.ChicksSettled)
	assert.Equal(t, 1, recap.ActionsApplied)
	assert.Equal(t, 1, recap.ActionsRejected)
	assert.Equal(t, 1, recap.FlushFailures)

	require.Len(t, recap.Events, 6, "commits are not listed")
	assert.Equal(t, "4 chicks left from a previous run were settled", recap.Events[0].Summary)
	assert.Equal(t, "2 clutch(es) started, 20 chicks incubating", recap.Events[1].Summary)
	assert.Equal(t, "build_nest rejected: needs 10 eggs", recap.Events[2].Summary)
	assert.Equal(t, "NEGATIVE", recap.Events[2].Impact)
	assert.Equal(t, "POSITIVE", recap.Events[3].Impact)

	later, err := NewReconstructor(s).GenerateRecap(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, later.Ticks)
	assert.Zero(t, later.Clutches)
	assert.Len(t, later.Events, 4)
}

func TestReconstructor_IgnoresMalformedPayloads(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendEvent(ctx, EventRecord{ID: "x", Timestamp: time.Now(), Type: "EFFECT_DONE", Tick: 1, Payload: `not json`}))

	recap, err := NewReconstructor(s).GenerateRecap(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, recap.ChicksHatched)
	assert.Equal(t, "0 chicks hatched", recap.Events[0].Summary)
}

type failingSource struct{}

func (failingSource) EventsSince(context.Context, uint64) ([]EventRecord, error) {
	return nil, errors.New("database is locked")
}

func TestReconstructor_SourceError(t *testing.T) {
	_, err := NewReconstructor(failingSource{}).GenerateRecap(context.Background(), 0)
	assert.ErrorContains(t, err, "database is locked")
}
