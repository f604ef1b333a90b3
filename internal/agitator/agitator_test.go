package agitator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
	"github.com/MRamiBalles/tofuwabohu/server/internal/network"
	"github.com/MRamiBalles/tofuwabohu/server/internal/persist"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

type countingEnqueuer struct{ n atomic.Int64 }

func (c *countingEnqueuer) Enqueue(coop.Action) { c.n.Add(1) }

func startCoop(t *testing.T) (*httptest.Server, *countingEnqueuer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := persist.NewRegistry(storage.NewMemoryStore(nil), logger.Discard())
	state := coop.NewState(ctx, reg)
	hub := network.NewHub(state.View(), logger.Discard(), network.HubOptions{})
	go hub.Run(ctx)
	go func() {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for n := uint64(1); ; n++ {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				hub.BroadcastEvent(ctx, events.GameEvent{Type: events.EventTypeTickCommitted, Tick: n})
			}
		}
	}()

	target := &countingEnqueuer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	network.NewActionBridge(target, logger.Discard()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, target
}

func TestRun_DrivesSpectatorsAndPosters(t *testing.T) {
	srv, target := startCoop(t)

	res, err := Run(context.Background(), Config{
		BaseURL:        srv.URL,
		Spectators:     3,
		Posters:        2,
		ActionInterval: 10 * time.Millisecond,
		Duration:       300 * time.Millisecond,
	}, logger.Discard())
	require.NoError(t, err)

	assert.Positive(t, res.ActionsSent)
	assert.Zero(t, res.ActionsRefused)
	assert.Zero(t, res.Errors)
	assert.GreaterOrEqual(t, target.n.Load(), res.ActionsSent, "a request cut off by the deadline may still have landed")
	assert.GreaterOrEqual(t, res.MessagesReceived, int64(3), "every spectator gets at least its hello")
	assert.LessOrEqual(t, res.LatencyMin, res.LatencyP50)
	assert.LessOrEqual(t, res.LatencyP50, res.LatencyMax)
	assert.Equal(t, "PASSED", res.Verdict())
}

func TestRun_CountsRefusedActions(t *testing.T) {
	srv, target := startCoop(t)

	res, err := Run(context.Background(), Config{
		BaseURL:        srv.URL,
		Posters:        1,
		ActionInterval: 10 * time.Millisecond,
		Duration:       100 * time.Millisecond,
		Actions:        []string{"fly"},
	}, logger.Discard())
	require.NoError(t, err)

	assert.Positive(t, res.ActionsRefused)
	assert.Equal(t, res.ActionsSent, res.ActionsRefused)
	assert.Zero(t, target.n.Load())
	assert.NotEqual(t, "PASSED", res.Verdict())
}

func TestRun_UnreachableServer(t *testing.T) {
	res, err := Run(context.Background(), Config{
		BaseURL:    "http://127.0.0.1:1",
		Spectators: 2,
		Duration:   100 * time.Millisecond,
	}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Errors)
	assert.Equal(t, "FAILED", res.Verdict())
}

func TestRun_BadURL(t *testing.T) {
	_, err := Run(context.Background(), Config{BaseURL: "://nope"}, logger.Discard())
	assert.Error(t, err)
}
