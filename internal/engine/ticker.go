package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Clock paces the transaction loop. AwaitNextTick blocks until the next
// tick is due; it returns an error only when ctx ends.
type Clock interface {
	AwaitNextTick(ctx context.Context) error
	ShutdownRequested() bool
}

// TickerClock is the wall-clock heartbeat used by the server.
type TickerClock struct {
	interval time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
}

// NewTickerClock ticks every interval. A zero interval never waits.
func NewTickerClock(interval time.Duration) *TickerClock {
	c := &TickerClock{
		interval: interval,
		stopChan: make(chan struct{}),
	}
	if interval > 0 {
		c.ticker = time.NewTicker(interval)
	}
	return c
}

func (c *TickerClock) AwaitNextTick(ctx context.Context) error {
	if c.ticker == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopChan:
		return nil
	case <-c.ticker.C:
		return nil
	}
}

func (c *TickerClock) ShutdownRequested() bool {
	return c.stopped.Load()
}

// Stop requests shutdown. The loop finishes its current tick, runs the final
// flush and returns. Safe to call more than once.
func (c *TickerClock) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopChan)
		if c.ticker != nil {
			c.ticker.Stop()
		}
	})
}

// ManualClock advances only when told to. Tests drive the loop with it.
type ManualClock struct {
	ticks   chan struct{}
	stopped atomic.Bool
	waits   atomic.Int64
}

// NewManualClock creates a clock with no pending ticks.
func NewManualClock() *ManualClock {
	return &ManualClock{ticks: make(chan struct{}, 1024)}
}

// Advance releases n waits.
func (c *ManualClock) Advance(n int) {
	for i := 0; i < n; i++ {
		c.ticks <- struct{}{}
	}
}

// Waits returns how many times the loop has reached a tick boundary.
func (c *ManualClock) Waits() int64 { return c.waits.Load() }

func (c *ManualClock) AwaitNextTick(ctx context.Context) error {
	c.waits.Add(1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ticks:
		return nil
	}
}

func (c *ManualClock) ShutdownRequested() bool { return c.stopped.Load() }

// Stop requests shutdown at the next boundary. Pair it with Advance(1) if
// the loop is already waiting.
func (c *ManualClock) Stop() { c.stopped.Store(true) }

// BudgetClock requests shutdown after a fixed number of ticks.
type BudgetClock struct {
	inner  Clock
	budget uint64
	passed atomic.Uint64
}

// NewBudgetClock lets inner pace at most budget ticks.
func NewBudgetClock(inner Clock, budget uint64) *BudgetClock {
	return &BudgetClock{inner: inner, budget: budget}
}

func (c *BudgetClock) AwaitNextTick(ctx context.Context) error {
	if c.passed.Add(1) >= c.budget {
		return ctx.Err()
	}
	return c.inner.AwaitNextTick(ctx)
}

func (c *BudgetClock) ShutdownRequested() bool {
	return c.passed.Load() >= c.budget || c.inner.ShutdownRequested()
}
