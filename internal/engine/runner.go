package engine

import (
	"context"
	"errors"
	"time"

	"github.com/MRamiBalles/tofuwabohu/server/internal/persist"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/metrics"
)

// TickKey is the store key of the committed tick counter.
const TickKey = "tick"

// Body is one iteration of the simulation.
type Body func(ctx context.Context, tick uint64) error

// CommitFunc observes every flush pass.
type CommitFunc func(tick uint64, rep persist.Report)

// Runner executes the simulation in transactions: run the body, then make
// every field it touched durable in one flush pass.
//
// The store is written only by flush passes, which run after the body has
// returned, so a crash loses at most the tick in progress.
type Runner struct {
	reg          *persist.Registry
	logger       *logger.Logger
	metrics      *metrics.Collector
	flushTimeout time.Duration
	onCommit     CommitFunc

	tick *persist.Field[uint64]
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Metrics      *metrics.Collector
	FlushTimeout time.Duration
	OnCommit     CommitFunc
}

// NewRunner creates a runner flushing reg. The tick counter is itself a
// persistent field, so numbering resumes where the previous run stopped.
func NewRunner(ctx context.Context, reg *persist.Registry, log *logger.Logger, opts RunnerOptions) *Runner {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}
	return &Runner{
		reg:          reg,
		logger:       log,
		metrics:      opts.Metrics,
		flushTimeout: opts.FlushTimeout,
		onCommit:     opts.OnCommit,
		tick:         persist.NewField[uint64](ctx, reg, TickKey, 0),
	}
}

// Tick returns the number of the last tick the loop started.
func (r *Runner) Tick() uint64 { return r.tick.Get() }

// Step runs body once, outside the tick numbering, and flushes. Used for
// catch-up work at startup.
func (r *Runner) Step(ctx context.Context, body Body) error {
	tick := r.tick.Get()
	err := body(ctx, tick)
	r.flush(ctx, tick)
	return err
}

// Loop runs body once per tick until the clock requests shutdown or ctx
// ends, flushing after every iteration. On the way out it runs a final
// flush pass on a fresh context so that cancellation does not lose the
// last tick. Body errors are logged and the loop carries on; only
// cancellation stops it.
func (r *Runner) Loop(ctx context.Context, clock Clock, body Body) error {
	r.logger.Info("transaction loop started", "tick", r.tick.Get())

	var exitErr error
	for !clock.ShutdownRequested() {
		tick := r.tick.Get() + 1
		r.tick.Set(tick)

		start := time.Now()
		if err := body(ctx, tick); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				exitErr = err
				break
			}
			r.logger.Error("tick body failed", "tick", tick, "error", err)
		}
		r.flush(ctx, tick)
		r.metrics.RecordTick(tick, time.Since(start))

		if err := clock.AwaitNextTick(ctx); err != nil {
			exitErr = err
			break
		}
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), r.flushTimeout)
	defer cancel()
	rep := r.flush(finalCtx, r.tick.Get())
	r.logger.Info("transaction loop stopped", "tick", r.tick.Get(), "final_flush_ok", rep.OK())
	return exitErr
}

func (r *Runner) flush(ctx context.Context, tick uint64) persist.Report {
	start := time.Now()
	rep := r.reg.Flush(ctx, tick)
	failed := len(rep.Failed)
	if rep.Err != nil {
		failed++
	}
	r.metrics.RecordFlush(time.Since(start), len(rep.Written), failed)

	if rep.Err != nil {
		r.logger.Error("flush pass failed to commit", "tick", tick, "error", rep.Err)
	}
	for _, kerr := range rep.Failed {
		r.logger.Error("field failed to flush", "tick", tick, "key", kerr.Key, "error", kerr.Err)
	}
	if r.onCommit != nil {
		r.onCommit(tick, rep)
	}
	return rep
}
