// Package agitator is a load generator for a running coop: it attaches many
// spectators to the websocket feed and posts player actions at a fixed pace.
package agitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

// Config for the agitator.
type Config struct {
	BaseURL        string // e.g. http://localhost:8080
	Spectators     int
	Posters        int
	ActionInterval time.Duration
	Duration       time.Duration
	Actions        []string
}

// DefaultActions is what posters pick from when Config.Actions is empty.
var DefaultActions = []string{"lay", "lay:2", "nest", "build_nest:2"}

// Stats tracks what the run observed.
type Stats struct {
	MessagesReceived int64
	ActionsSent      int64
	ActionsRefused   int64
	Errors           int64

	mu        sync.Mutex
	latencies []time.Duration
}

// Result summarizes a run.
type Result struct {
	MessagesReceived int64         `json:"messages_received"`
	ActionsSent      int64         `json:"actions_sent"`
	ActionsRefused   int64         `json:"actions_refused"`
	Errors           int64         `json:"errors"`
	ErrorRate        float64       `json:"error_rate"`
	Throughput       float64       `json:"throughput"`
	LatencyMin       time.Duration `json:"latency_min"`
	LatencyP50       time.Duration `json:"latency_p50"`
	LatencyMax       time.Duration `json:"latency_max"`
}

// Run drives the coop at cfg.BaseURL until cfg.Duration passes or ctx ends.
func Run(ctx context.Context, cfg Config, log *logger.Logger) (Result, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.ActionInterval <= 0 {
		cfg.ActionInterval = 100 * time.Millisecond
	}
	if len(cfg.Actions) == 0 {
		cfg.Actions = DefaultActions
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	stats := &Stats{}
	client := &http.Client{Timeout: 5 * time.Second}
	started := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Spectators; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			watch(ctx, id, wsURL(base), stats, log)
		}(i)
	}
	for i := 0; i < cfg.Posters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			post(ctx, id, client, base.JoinPath("api", "actions").String(), cfg, stats)
		}(i)
	}
	log.Info("agitator started", "spectators", cfg.Spectators, "posters", cfg.Posters, "target", cfg.BaseURL)

	wg.Wait()
	return stats.result(time.Since(started)), nil
}

func wsURL(base *url.URL) string {
	u := *base
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	return u.JoinPath("ws").String()
}

func watch(ctx context.Context, id int, target string, stats *Stats, log *logger.Logger) {
	log = log.With("spectator", id)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		log.Warn("spectator connection failed", "error", err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	// unblock the read when the run ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// the write pump batches queued messages into one frame
		atomic.AddInt64(&stats.MessagesReceived, int64(bytes.Count(data, []byte{'\n'})+1))
	}
}

func post(ctx context.Context, id int, client *http.Client, target string, cfg Config, stats *Stats) {
	ticker := time.NewTicker(cfg.ActionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			body, _ := json.Marshal(map[string]string{"action": cfg.Actions[rand.IntN(len(cfg.Actions))]})
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			req.Header.Set("Content-Type", "application/json")

			start := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				if ctx.Err() == nil {
					atomic.AddInt64(&stats.Errors, 1)
				}
				continue
			}
			resp.Body.Close()
			stats.observe(time.Since(start))

			atomic.AddInt64(&stats.ActionsSent, 1)
			if resp.StatusCode != http.StatusAccepted {
				atomic.AddInt64(&stats.ActionsRefused, 1)
			}
		}
	}
}

func (s *Stats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *Stats) result(elapsed time.Duration) Result {
	res := Result{
		MessagesReceived: atomic.LoadInt64(&s.MessagesReceived),
		ActionsSent:      atomic.LoadInt64(&s.ActionsSent),
		ActionsRefused:   atomic.LoadInt64(&s.ActionsRefused),
		Errors:           atomic.LoadInt64(&s.Errors),
	}
	res.ErrorRate = float64(res.Errors) / float64(res.ActionsSent+1)
	if elapsed > 0 {
		res.Throughput = float64(res.ActionsSent) / elapsed.Seconds()
	}

	s.mu.Lock()
	lat := slices.Clone(s.latencies)
	s.mu.Unlock()
	if len(lat) > 0 {
		slices.Sort(lat)
		res.LatencyMin = lat[0]
		res.LatencyP50 = lat[len(lat)/2]
		res.LatencyMax = lat[len(lat)-1]
	}
	return res
}

// Verdict grades a run the way an operator would read it.
func (r Result) Verdict() string {
	switch {
	case r.Errors == 0 && r.ActionsRefused == 0:
		return "PASSED"
	case r.ErrorRate < 0.05:
		return "WARNING"
	default:
		return "FAILED"
	}
}
