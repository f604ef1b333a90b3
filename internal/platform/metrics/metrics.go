// Package metrics provides observability for the coop server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics. Create one per server with
// NewCollector and hand it to whatever records into it.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTick       int64
	LastTickTime   time.Time

	// Flush metrics
	FlushPasses     int64
	FlushLatencySum int64
	FlushLatencyMax int64
	KeysWritten     int64
	FlushErrors     int64

	// Effect metrics
	EffectsScheduled  int64
	EffectsCompleted  int64
	EffectsInFlight   int64
	MutationsApplied  int64
	MutationsRejected int64

	// Journal metrics
	EventsWritten    int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesOut       int64
	WSErrors            int64

	StartTime time.Time
	mu        sync.RWMutex
}

// NewCollector creates a collector whose uptime starts now.
func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(tick uint64, latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))
	atomic.StoreInt64(&c.LastTick, int64(tick))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordFlush records one flush pass.
func (c *Collector) RecordFlush(latency time.Duration, written, failed int) {
	atomic.AddInt64(&c.FlushPasses, 1)
	atomic.AddInt64(&c.FlushLatencySum, int64(latency))
	storeMax(&c.FlushLatencyMax, int64(latency))
	atomic.AddInt64(&c.KeysWritten, int64(written))
	atomic.AddInt64(&c.FlushErrors, int64(failed))
}

// RecordEffects records one scheduler tick.
func (c *Collector) RecordEffects(scheduled, completed, inFlight, applied, rejected int) {
	atomic.AddInt64(&c.EffectsScheduled, int64(scheduled))
	atomic.AddInt64(&c.EffectsCompleted, int64(completed))
	atomic.StoreInt64(&c.EffectsInFlight, int64(inFlight))
	atomic.AddInt64(&c.MutationsApplied, int64(applied))
	atomic.AddInt64(&c.MutationsRejected, int64(rejected))
}

// RecordEventWrite records a journal write.
func (c *Collector) RecordEventWrite(err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records an outgoing WebSocket message.
func (c *Collector) RecordWSMessage() {
	atomic.AddInt64(&c.WSMessagesOut, 1)
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

func avgMillis(sum, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n) / 1e6
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]any {
	c.mu.RLock()
	lastTickTime := c.LastTickTime
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	passes := atomic.LoadInt64(&c.FlushPasses)

	return map[string]any{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]any{
			"count":          tickCount,
			"last":           atomic.LoadInt64(&c.LastTick),
			"avg_latency_ms": avgMillis(atomic.LoadInt64(&c.TickLatencySum), tickCount),
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTickTime.Format(time.RFC3339),
		},

		"flush": map[string]any{
			"passes":         passes,
			"keys_written":   atomic.LoadInt64(&c.KeysWritten),
			"errors":         atomic.LoadInt64(&c.FlushErrors),
			"avg_latency_ms": avgMillis(atomic.LoadInt64(&c.FlushLatencySum), passes),
			"max_latency_ms": float64(atomic.LoadInt64(&c.FlushLatencyMax)) / 1e6,
		},

		"effects": map[string]any{
			"scheduled":          atomic.LoadInt64(&c.EffectsScheduled),
			"completed":          atomic.LoadInt64(&c.EffectsCompleted),
			"in_flight":          atomic.LoadInt64(&c.EffectsInFlight),
			"mutations_applied":  atomic.LoadInt64(&c.MutationsApplied),
			"mutations_rejected": atomic.LoadInt64(&c.MutationsRejected),
		},

		"events": map[string]any{
			"written": atomic.LoadInt64(&c.EventsWritten),
			"errors":  atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]any{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler serving the snapshot as JSON.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n\n", name, v)
		}
		gauge := func(name, help string, v float64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", name)
			fmt.Fprintf(w, "%s %g\n\n", name, v)
		}

		counter("coop_tick_count", "Total tick cycles", atomic.LoadInt64(&c.TickCount))
		gauge("coop_tick_latency_max_ms", "Maximum tick latency", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		counter("coop_flush_passes", "Total flush passes", atomic.LoadInt64(&c.FlushPasses))
		counter("coop_flush_keys_written", "Total keys written by flush passes", atomic.LoadInt64(&c.KeysWritten))
		counter("coop_flush_errors", "Total keys that failed to flush", atomic.LoadInt64(&c.FlushErrors))

		counter("coop_effects_completed", "Total effects completed", atomic.LoadInt64(&c.EffectsCompleted))
		gauge("coop_effects_in_flight", "Effects currently scheduled", float64(atomic.LoadInt64(&c.EffectsInFlight)))

		counter("coop_events_written", "Total journal events written", atomic.LoadInt64(&c.EventsWritten))
		counter("coop_event_write_errors", "Total journal write errors", atomic.LoadInt64(&c.EventWriteErrors))

		gauge("coop_ws_connections", "Active WebSocket connections", float64(atomic.LoadInt64(&c.WSConnectionsActive)))
		counter("coop_ws_messages_out", "Total WebSocket messages sent", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
