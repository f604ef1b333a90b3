package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/engine"
	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
	"github.com/MRamiBalles/tofuwabohu/server/internal/network"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/metrics"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "coop", cmd.Use)

	for _, name := range []string{"run", "simulate", "show", "agitate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, flag := range []string{"config", "preset", "format", "db", "listen", "tick", "log-level", "rate", "autopilot"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_RejectsBadFormat(t *testing.T) {
	_, err := execute(t, "show", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestSimulate_ResumesFromDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "coop.db")

	out, err := execute(t, "simulate", "--db", db, "--ticks", "12", "--format", "json")
	require.NoError(t, err)
	var first Summary
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, uint64(12), first.Tick)
	assert.Equal(t, uint64(1), first.State.Chickens)
	assert.Positive(t, first.State.Eggs, "autopilot lays every tick")
	assert.Positive(t, first.Events)

	out, err = execute(t, "simulate", "--db", db, "--ticks", "3", "--format", "json")
	require.NoError(t, err)
	var second Summary
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Equal(t, uint64(15), second.Tick)
	assert.GreaterOrEqual(t, second.State.Eggs, first.State.Eggs)

	out, err = execute(t, "show", "--db", db, "--format", "json", "--commits", "2")
	require.NoError(t, err)
	var shown ShowResult
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "15", shown.Values["tick"])
	assert.Len(t, shown.Commits, 2)
	assert.Nil(t, shown.Recap)

	out, err = execute(t, "show", "--db", db, "--format", "json", "--recap", "--since", "13")
	require.NoError(t, err)
	shown = ShowResult{}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.NotNil(t, shown.Recap)
	assert.Equal(t, uint64(15), shown.Recap.LastTick)
	assert.GreaterOrEqual(t, shown.Recap.Ticks, 3)
	assert.Positive(t, shown.Recap.ActionsApplied)
}

func TestSimulate_TextOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "coop.db")
	out, err := execute(t, "simulate", "--db", db, "--ticks", "2", "--autopilot=false")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped at tick 2")
	assert.Contains(t, out, "chickens 1  nests 0  eggs 0")
}

func TestSimulate_RequiresTickBudget(t *testing.T) {
	db := filepath.Join(t.TempDir(), "coop.db")

	_, err := execute(t, "simulate", "--db", db, "--ticks", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, "simulate", "--db", db, "--preset", "default", "--ticks", "4", "--format", "json")
	require.NoError(t, err)
	var sum Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, uint64(4), sum.Tick)
}

func TestShow_MissingDatabase(t *testing.T) {
	_, err := execute(t, "show", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResolveConfig_Precedence(t *testing.T) {
	t.Setenv("COOP_RATE_CURVE", "ramp")
	t.Setenv("COOP_DB_PATH", "from-env.db")

	opts := &RootOptions{}
	cmd := &cobra.Command{Use: "probe"}
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "")
	cmd.Flags().DurationVar(&opts.Tick, "tick", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--db", "from-flag.db", "--tick", "250ms"}))

	cfg, err := resolveConfig(cmd, opts, "low")
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.DBPath, "flags beat the environment")
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "ramp", cfg.RateCurve, "environment beats the preset")
	assert.Equal(t, "debug", cfg.LogLevel, "preset fills the rest")
}

func TestResolveConfig_InvalidFlag(t *testing.T) {
	db := filepath.Join(t.TempDir(), "coop.db")
	_, err := execute(t, "simulate", "--db", db, "--rate", "warp")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

type fakeAppender struct {
	records []storage.EventRecord
	err     error
}

func (f *fakeAppender) AppendEvent(_ context.Context, rec storage.EventRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

func TestJournalPersister(t *testing.T) {
	store := &fakeAppender{}
	el := events.NewEventLog(&journalPersister{store: store, timeout: time.Second})

	ev, err := el.Append(events.GameEvent{Type: events.EventTypeClutchStarted, Tick: 9, Payload: map[string]uint64{"chicks": 10}})
	require.NoError(t, err)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, ev.ID, rec.ID)
	assert.Equal(t, "CLUTCH_STARTED", rec.Type)
	assert.Equal(t, uint64(9), rec.Tick)
	assert.JSONEq(t, `{"chicks":10}`, rec.Payload)

	store.err = errors.New("locked")
	_, err = el.Append(events.GameEvent{Type: events.EventTypeTickCommitted})
	assert.Error(t, err)
	assert.Equal(t, 2, el.Len(), "the in-memory journal keeps the event anyway")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", nil)))
}

func TestMux_ServesEveryRoute(t *testing.T) {
	ctx := context.Background()
	collector := metrics.NewCollector()
	el := events.NewEventLog(nil)
	eng := engine.NewEngine(ctx, storage.NewMemoryStore(nil), el, collector, logger.Discard(), engine.Options{})
	defer eng.Close()
	hub := network.NewHub(eng.View(), logger.Discard(), network.HubOptions{Metrics: collector})

	srv := httptest.NewServer(newMux(eng, hub, collector, logger.Discard()))
	defer srv.Close()

	for _, path := range []string{"/healthz", "/api/state", "/api/journal", "/api/journal/stats", "/metrics", "/metrics.json"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Post(srv.URL+"/api/actions", "application/json", strings.NewReader(`{"action":"lay:2"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, eng.Run(ctx, engine.NewBudgetClock(engine.NewTickerClock(0), 1)))
	assert.Equal(t, uint64(2), eng.State().Snapshot().Eggs)
	assert.Len(t, el.Filter(events.EventTypeActionApplied, 0), 1)
	assert.Equal(t, coop.LayEgg.String(), el.Filter(events.EventTypeActionApplied, 0)[0].Payload.(engine.ActionPayload).Action)
}

// commitFailingStore rolls back every flush pass while failing is set.
type commitFailingStore struct {
	*storage.SQLiteStore
	failing bool
}

func (s *commitFailingStore) Begin(ctx context.Context, tick uint64) (storage.Batch, error) {
	batch, err := s.SQLiteStore.Begin(ctx, tick)
	if err != nil || !s.failing {
		return batch, err
	}
	return rollbackBatch{batch}, nil
}

type rollbackBatch struct{ storage.Batch }

func (b rollbackBatch) Commit() error {
	_ = b.Batch.Rollback()
	return errors.New("commit refused")
}

func TestJournal_NoRowsForUncommittedTick(t *testing.T) {
	ctx := context.Background()
	sqlite, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "coop.db"))
	require.NoError(t, err)
	defer sqlite.Close()
	store := &commitFailingStore{SQLiteStore: sqlite, failing: true}

	el := events.NewEventLog(&journalPersister{store: sqlite, timeout: time.Second})
	eng := engine.NewEngine(ctx, store, el, metrics.NewCollector(), logger.Discard(), engine.Options{})
	defer eng.Close()
	eng.Enqueue(coop.Action{Kind: coop.LayEgg})
	require.NoError(t, eng.Run(ctx, engine.NewBudgetClock(engine.NewTickerClock(0), 1)))

	rows, err := sqlite.EventsSince(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		assert.Equal(t, string(events.EventTypeFlushFailed), row.Type, "only failures reach the table")
	}

	store.failing = false
	require.NoError(t, eng.Run(ctx, engine.NewBudgetClock(engine.NewTickerClock(0), 0)))

	applied, err := sqlite.EventsByType(ctx, string(events.EventTypeActionApplied))
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, uint64(1), applied[0].Tick)
}
