package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/metrics"
)

func newTestEngine(t *testing.T, store storage.Store, autopilot bool) (*Engine, *events.EventLog) {
	t.Helper()
	el := events.NewEventLog(nil)
	eng := NewEngine(context.Background(), store, el, metrics.NewCollector(), logger.Discard(), Options{Autopilot: autopilot})
	return eng, el
}

func TestEngine_BreedingScenario(t *testing.T) {
	store := storage.NewMemoryStore(map[string]string{"breeding": "1999"})
	eng, el := newTestEngine(t, store, false)

	require.NoError(t, eng.Run(context.Background(), budget(1)))

	snap := eng.State().Snapshot()
	assert.Equal(t, uint64(999), snap.Breeding)
	assert.Equal(t, uint64(1), snap.Clutches)
	assert.Equal(t, "999", store.Snapshot()["breeding"])
	assert.Equal(t, "1", store.Snapshot()["clutches"])

	clutches := el.Filter(events.EventTypeClutchStarted, 0)
	require.Len(t, clutches, 1)
	assert.Equal(t, uint64(1), clutches[0].Tick)
	assert.Equal(t, uint64(coop.ChicksPerClutch), clutches[0].Payload.(ClutchPayload).Chicks)
}

func TestEngine_HatchCompletesAndIsJournaled(t *testing.T) {
	store := storage.NewMemoryStore(map[string]string{"breeding": "1001"})
	eng, el := newTestEngine(t, store, false)

	require.NoError(t, eng.Run(context.Background(), budget(10)))

	assert.Equal(t, coop.Snapshot{Chickens: 10, Eggs: 1, Breeding: 1, Clutches: 1}, eng.State().Snapshot())
	assert.Equal(t, 0, eng.InFlight())

	done := el.Filter(events.EventTypeEffectDone, 0)
	require.Len(t, done, 1)
	assert.Equal(t, uint64(9), done[0].Tick)
	payload := done[0].Payload.(EffectPayload)
	assert.Equal(t, uint64(10), payload.Total)
	assert.Equal(t, uint64(7), payload.Moved)
	assert.Equal(t, uint64(2), payload.SplitMain)
	assert.Equal(t, uint64(1), payload.SplitAlt)
}

func TestEngine_ReconcilesOrphanedIncubation(t *testing.T) {
	store := storage.NewMemoryStore(map[string]string{"incubating": "5"})
	eng, el := newTestEngine(t, store, false)

	require.NoError(t, eng.Run(context.Background(), budget(0)))

	assert.Equal(t, coop.Snapshot{Chickens: 4, Eggs: 2}, eng.State().Snapshot())
	assert.Equal(t, "0", store.Snapshot()["incubating"], "the catch-up step is flushed")
	assert.Len(t, el.Filter(events.EventTypeReconciled, 0), 1)
}

func TestEngine_QueuedActions(t *testing.T) {
	store := storage.NewMemoryStore(map[string]string{"eggs": "3"})
	eng, el := newTestEngine(t, store, false)

	eng.Enqueue(coop.Action{Kind: coop.LayEgg, Count: 2})
	eng.Enqueue(coop.Action{Kind: coop.BuildNest})
	require.NoError(t, eng.Run(context.Background(), budget(1)))

	assert.Equal(t, uint64(5), eng.State().Snapshot().Eggs)
	assert.Len(t, el.Filter(events.EventTypeActionApplied, 0), 1)
	rejected := el.Filter(events.EventTypeActionRejected, 0)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Payload.(ActionPayload).Reason, "needs more than 10 eggs")
}

func TestEngine_TickCommittedCarriesState(t *testing.T) {
	eng, el := newTestEngine(t, storage.NewMemoryStore(nil), true)

	require.NoError(t, eng.Run(context.Background(), budget(30)))

	commits := el.Filter(events.EventTypeTickCommitted, 1)
	require.NotEmpty(t, commits)
	last := commits[len(commits)-1]
	assert.Equal(t, uint64(30), last.Tick)
	assert.Equal(t, eng.State().Snapshot(), last.Payload.(TickPayload).State)
	assert.Empty(t, el.Filter(events.EventTypeFlushFailed, 0))
}

func TestEngine_RestartRestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coop.db")
	ctx := context.Background()

	store, err := storage.OpenSQLite(path)
	require.NoError(t, err)
	eng, _ := newTestEngine(t, store, true)
	require.NoError(t, eng.Run(ctx, budget(40)))
	before := eng.State().Snapshot()
	view := eng.View()
	eng.Close()
	require.NoError(t, store.Close())

	_, ok := view.Snapshot()
	assert.False(t, ok, "views do not outlive the engine")

	store, err = storage.OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()
	again, _ := newTestEngine(t, store, true)

	assert.Equal(t, before, again.State().Snapshot())
	assert.Equal(t, uint64(40), again.Tick())

	commits, err := store.RecentCommits(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, commits)
}

func TestEngine_FlushFailureIsJournaled(t *testing.T) {
	store := &brokenStore{MemoryStore: storage.NewMemoryStore(nil)}
	store.setBroken(true)
	eng, el := newTestEngine(t, store, false)

	require.NoError(t, eng.Run(context.Background(), budget(1)))

	failed := el.Filter(events.EventTypeFlushFailed, 0)
	assert.NotEmpty(t, failed)
	assert.Equal(t, errDiskFull.Error(), failed[0].Payload.(FlushFailedPayload).Error)
}

func TestEngine_JournalWaitsForCommit(t *testing.T) {
	store := &brokenStore{MemoryStore: storage.NewMemoryStore(nil)}
	store.setBroken(true)
	eng, el := newTestEngine(t, store, false)

	eng.Enqueue(coop.Action{Kind: coop.LayEgg})
	require.NoError(t, eng.Run(context.Background(), budget(1)))

	assert.Empty(t, el.Filter(events.EventTypeActionApplied, 0), "nothing committed tick 1 yet")
	assert.Empty(t, el.Filter(events.EventTypeTickCommitted, 0))
	assert.NotEmpty(t, el.Filter(events.EventTypeFlushFailed, 0))

	store.setBroken(false)
	require.NoError(t, eng.Run(context.Background(), budget(0)))

	applied := el.Filter(events.EventTypeActionApplied, 0)
	require.Len(t, applied, 1)
	assert.Equal(t, uint64(1), applied[0].Tick)
	assert.Equal(t, "1", store.Snapshot()["eggs"])
	assert.NotEmpty(t, el.Filter(events.EventTypeTickCommitted, 0))
}

// keyFailingStore fails writes of one key.
type keyFailingStore struct {
	*storage.MemoryStore
	key string
}

func (s *keyFailingStore) SetText(ctx context.Context, key, value string) error {
	if key == s.key {
		return errDiskFull
	}
	return s.MemoryStore.SetText(ctx, key, value)
}

func TestEngine_PartialCommitIsFlagged(t *testing.T) {
	store := &keyFailingStore{MemoryStore: storage.NewMemoryStore(nil), key: "eggs"}
	eng, el := newTestEngine(t, store, false)

	eng.Enqueue(coop.Action{Kind: coop.LayEgg})
	require.NoError(t, eng.Run(context.Background(), budget(1)))

	commits := el.Filter(events.EventTypeTickCommitted, 1)
	require.NotEmpty(t, commits)
	payload := commits[0].Payload.(TickPayload)
	assert.True(t, payload.Partial)
	assert.Equal(t, []string{"eggs"}, payload.Failed)
	assert.Contains(t, payload.Written, TickKey)
	assert.Len(t, el.Filter(events.EventTypeActionApplied, 0), 1)
}

func TestEngine_FullCommitIsNotPartial(t *testing.T) {
	eng, el := newTestEngine(t, storage.NewMemoryStore(nil), true)

	require.NoError(t, eng.Run(context.Background(), budget(3)))

	for _, ev := range el.Filter(events.EventTypeTickCommitted, 0) {
		payload := ev.Payload.(TickPayload)
		assert.False(t, payload.Partial)
		assert.Empty(t, payload.Failed)
	}
}
