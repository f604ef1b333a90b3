package engine

import (
	"context"
	"time"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/effects"
	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
	"github.com/MRamiBalles/tofuwabohu/server/internal/persist"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/metrics"
)

// TickPayload is attached to TICK_COMMITTED events. Partial is set when
// some keys failed to write; they are listed in Failed and stay dirty.
type TickPayload struct {
	State    coop.Snapshot `json:"state"`
	Written  []string      `json:"written,omitempty"`
	Failed   []string      `json:"failed,omitempty"`
	Partial  bool          `json:"partial,omitempty"`
	InFlight int           `json:"in_flight"`
}

// maxHeldEvents bounds the events kept back while flush passes fail.
const maxHeldEvents = 4096

// ClutchPayload is attached to CLUTCH_STARTED events.
type ClutchPayload struct {
	Clutches uint64 `json:"clutches"`
	Chicks   uint64 `json:"chicks"`
	EffectID string `json:"effect_id"`
}

// EffectPayload is attached to EFFECT_DONE events.
type EffectPayload struct {
	EffectID  string `json:"effect_id"`
	Total     uint64 `json:"total"`
	Moved     uint64 `json:"moved"`
	SplitMain uint64 `json:"split_main"`
	SplitAlt  uint64 `json:"split_alt"`
}

// ActionPayload is attached to ACTION_APPLIED and ACTION_REJECTED events.
type ActionPayload struct {
	Action string `json:"action"`
	Count  uint64 `json:"count,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// FlushFailedPayload is attached to FLUSH_FAILED events.
type FlushFailedPayload struct {
	Key   string `json:"key,omitempty"`
	Error string `json:"error"`
}

// Options tunes the engine.
type Options struct {
	Rate         effects.RateFunc
	Autopilot    bool
	FlushTimeout time.Duration
}

// Engine is the central orchestrator: it wires the coop state, its rules
// and the effect scheduler into the transaction runner, and records what
// happens in the journal.
type Engine struct {
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	reg    *persist.Registry
	state  *coop.State
	rules  *coop.Rules
	sched  *effects.Scheduler
	runner *Runner

	// Events of ticks whose state has not been committed yet. Only the
	// loop goroutine touches it.
	held []events.GameEvent
}

// NewEngine loads the coop from store and prepares the systems around it.
func NewEngine(ctx context.Context, store storage.Store, eventLog *events.EventLog, collector *metrics.Collector, log *logger.Logger, opts Options) *Engine {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	e := &Engine{
		eventLog: eventLog,
		logger:   log,
		metrics:  collector,
		reg:      persist.NewRegistry(store, log),
		sched:    effects.NewScheduler(log),
	}
	e.state = coop.NewState(ctx, e.reg)

	var planner coop.Planner
	if opts.Autopilot {
		planner = coop.Autopilot{}
	}
	e.rules = coop.NewRules(e.state, e.sched, opts.Rate, planner)
	e.runner = NewRunner(ctx, e.reg, log, RunnerOptions{
		Metrics:      collector,
		FlushTimeout: opts.FlushTimeout,
		OnCommit:     e.committed,
	})
	return e
}

// Run settles whatever a previous run left in incubation, then drives the
// coop until the clock requests shutdown or ctx ends.
func (e *Engine) Run(ctx context.Context, clock Clock) error {
	e.logger.Info("starting coop engine", "tick", e.runner.Tick(), "state", e.state.Snapshot())

	if err := e.runner.Step(ctx, e.reconcile); err != nil {
		return err
	}
	return e.runner.Loop(ctx, clock, e.tick)
}

// Enqueue queues a player action for the next tick.
func (e *Engine) Enqueue(a coop.Action) { e.rules.Enqueue(a) }

// State exposes the shared aggregate.
func (e *Engine) State() *coop.State { return e.state }

// View returns read-only handles on the coop for other goroutines.
func (e *Engine) View() coop.View { return e.state.View() }

// Tick returns the last tick started.
func (e *Engine) Tick() uint64 { return e.runner.Tick() }

// InFlight returns the number of running effects.
func (e *Engine) InFlight() int { return e.sched.InFlight() }

// EventLog exposes the journal.
func (e *Engine) EventLog() *events.EventLog { return e.eventLog }

// Close releases the coop's cells. Views report absent afterwards.
func (e *Engine) Close() {
	if len(e.held) > 0 {
		e.logger.Warn("dropping journal events of uncommitted ticks", "events", len(e.held))
		e.held = nil
	}
	e.reg.Release()
}

func (e *Engine) reconcile(_ context.Context, tick uint64) error {
	if n := coop.Reconcile(e.state); n > 0 {
		e.logger.Warn("settled chicks left in incubation by a previous run", "chicks", n)
		e.hold(events.GameEvent{Type: events.EventTypeReconciled, Tick: tick, Payload: map[string]uint64{"chicks": n}})
	}
	return nil
}

func (e *Engine) tick(ctx context.Context, tick uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := e.rules.Tick(tick)
	scheduled := 0
	if res.Hatch != nil {
		scheduled = 1
		e.hold(events.GameEvent{
			Type: events.EventTypeClutchStarted,
			Tick: tick,
			Payload: ClutchPayload{
				Clutches: res.Clutches,
				Chicks:   res.Hatch.Total(),
				EffectID: res.Hatch.ID().String(),
			},
		})
	}
	for _, a := range res.Applied {
		e.hold(events.GameEvent{Type: events.EventTypeActionApplied, Tick: tick, Payload: ActionPayload{Action: a.Kind.String(), Count: a.Count}})
	}
	for _, rej := range res.Rejected {
		e.logger.Debug("action rejected", "tick", tick, "action", rej.Action.Kind, "reason", rej.Err)
		e.hold(events.GameEvent{
			Type:    events.EventTypeActionRejected,
			Tick:    tick,
			Payload: ActionPayload{Action: rej.Action.Kind.String(), Count: rej.Action.Count, Reason: rej.Err.Error()},
		})
	}

	rep := e.sched.Tick(tick, e.state)
	for _, done := range rep.Completed {
		payload := EffectPayload{EffectID: done.ID().String()}
		if tr, ok := done.(*effects.Transfer); ok {
			payload.Total = tr.Total()
			payload.Moved = tr.Moved()
			payload.SplitMain, payload.SplitAlt = tr.Split()
		}
		e.hold(events.GameEvent{Type: events.EventTypeEffectDone, Tick: tick, Payload: payload})
	}
	e.metrics.RecordEffects(scheduled, len(rep.Completed), e.sched.InFlight(), rep.Applied, len(rep.Errors))
	return nil
}

// committed journals a flush pass. Events produced by tick bodies are held
// until a pass commits the state they describe; a pass that wrote nothing
// because of errors keeps them for the next one.
func (e *Engine) committed(tick uint64, rep persist.Report) {
	if rep.Err != nil {
		e.record(events.GameEvent{Type: events.EventTypeFlushFailed, Tick: tick, Payload: FlushFailedPayload{Error: rep.Err.Error()}})
		return
	}
	for _, kerr := range rep.Failed {
		e.record(events.GameEvent{Type: events.EventTypeFlushFailed, Tick: tick, Payload: FlushFailedPayload{Key: kerr.Key, Error: kerr.Err.Error()}})
	}
	if len(rep.Failed) > 0 && len(rep.Written) == 0 {
		return
	}

	for _, ev := range e.held {
		e.record(ev)
	}
	e.held = e.held[:0]

	payload := TickPayload{
		State:    e.state.Snapshot(),
		Written:  rep.Written,
		InFlight: e.sched.InFlight(),
	}
	for _, kerr := range rep.Failed {
		payload.Failed = append(payload.Failed, kerr.Key)
	}
	payload.Partial = len(payload.Failed) > 0
	e.record(events.GameEvent{Type: events.EventTypeTickCommitted, Tick: tick, Payload: payload})
}

func (e *Engine) hold(ev events.GameEvent) {
	if e.eventLog == nil {
		return
	}
	if len(e.held) >= maxHeldEvents {
		e.logger.Warn("journal backlog full, dropping oldest held event", "type", e.held[0].Type, "tick", e.held[0].Tick)
		e.held = e.held[1:]
	}
	e.held = append(e.held, ev)
}

func (e *Engine) record(ev events.GameEvent) {
	if e.eventLog == nil {
		return
	}
	_, err := e.eventLog.Append(ev)
	e.metrics.RecordEventWrite(err)
	if err != nil {
		e.logger.Warn("journal write-through failed", "type", ev.Type, "tick", ev.Tick, "error", err)
	}
}
