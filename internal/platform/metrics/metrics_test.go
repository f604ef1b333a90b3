package metrics

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordTickKeepsMax(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordTick(uint64(i), time.Duration(i)*time.Millisecond)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.TickCount)
	assert.Equal(t, int64(50*time.Millisecond), c.TickLatencyMax)
}

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector()
	c.RecordFlush(2*time.Millisecond, 3, 1)
	c.RecordEffects(2, 1, 1, 5, 0)
	c.RecordEventWrite(nil)
	c.RecordEventWrite(errors.New("boom"))

	snap := c.Snapshot()
	flush := snap["flush"].(map[string]any)
	assert.Equal(t, int64(1), flush["passes"])
	assert.Equal(t, int64(3), flush["keys_written"])
	assert.Equal(t, int64(1), flush["errors"])

	events := snap["events"].(map[string]any)
	assert.Equal(t, int64(2), events["written"])
	assert.Equal(t, int64(1), events["errors"])
}

func TestCollector_Handlers(t *testing.T) {
	c := NewCollector()
	c.RecordTick(7, time.Millisecond)
	c.RecordWSConnection(1)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics.json", nil))
	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "tick")

	rec = httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "coop_tick_count 1\n")
	assert.Contains(t, rec.Body.String(), "coop_ws_connections 1\n")
}
