// Package effects schedules mechanics that unfold over several ticks.
//
// An effect is stepped once per tick. It never touches the shared aggregate
// itself: it posts typed mutations to the scheduler's queue, and the
// scheduler applies the whole batch under the aggregate lock once all
// effects have stepped. The lock is therefore never held across a tick
// boundary, and two effects hitting the same counter cannot lose an update.
package effects

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxEffectTicks bounds the life of every effect, finalization included.
const MaxEffectTicks = 100

// Phase is the lifecycle state of an effect.
type Phase int

const (
	// Pending effects still have countdown left and something to move.
	Pending Phase = iota
	// Finalizing effects apply their terminal mutation on the next step.
	Finalizing
	// Done effects are removed by the scheduler.
	Done
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Effect is a cooperative task stepped once per tick.
type Effect interface {
	ID() uuid.UUID
	Phase() Phase
	// Step advances the effect by one tick, posting any mutation it needs.
	Step(tick uint64, post func(Mutation))
}

// TransferSpec describes a Transfer effect.
type TransferSpec struct {
	Total uint64
	From  Counter
	To    Counter
	// SplitPrimary receives the odd unit of the terminal split; SplitSecondary
	// the other half. What the countdown leaves in From is split between them.
	SplitPrimary   Counter
	SplitSecondary Counter
	Rate           RateFunc
	// Ticks is the countdown of transfer ticks. Zero or anything above
	// MaxEffectTicks-1 is clamped to MaxEffectTicks-1.
	Ticks uint64
}

// Transfer drains Total from one counter into another over several ticks,
// then splits whatever the countdown left behind.
//
//	Pending(n) -> ... -> Pending(0) -> Finalizing -> Done
type Transfer struct {
	id        uuid.UUID
	spec      TransferSpec
	phase     Phase
	remaining uint64 // countdown
	elapsed   uint64
	moved     uint64
	split     [2]uint64
}

// NewTransfer creates a pending transfer effect.
func NewTransfer(spec TransferSpec) *Transfer {
	if spec.Rate == nil {
		spec.Rate = SteadyRate
	}
	if spec.Ticks == 0 || spec.Ticks > MaxEffectTicks-1 {
		spec.Ticks = MaxEffectTicks - 1
	}
	t := &Transfer{
		id:        uuid.New(),
		spec:      spec,
		remaining: spec.Ticks,
	}
	if spec.Total == 0 {
		t.phase = Finalizing
	}
	return t
}

func (t *Transfer) ID() uuid.UUID { return t.id }
func (t *Transfer) Phase() Phase { return t.phase }

// Total is the magnitude the effect was created with.
func (t *Transfer) Total() uint64 { return t.spec.Total }

// Moved is the sum of all per-tick transfers so far.
func (t *Transfer) Moved() uint64 { return t.moved }

// Split returns the terminal split, primary side first.
func (t *Transfer) Split() (primary, secondary uint64) { return t.split[0], t.split[1] }

// Remaining is the countdown left.
func (t *Transfer) Remaining() uint64 { return t.remaining }

// Elapsed is the number of transfer ticks taken so far.
func (t *Transfer) Elapsed() uint64 { return t.elapsed }

func (t *Transfer) Step(_ uint64, post func(Mutation)) {
	switch t.phase {
	case Pending:
		left := t.spec.Total - t.moved
		q := quantity(t.spec.Rate, t.spec.Total, t.elapsed, left)
		post(Mutation{
			Effect: t.id,
			Kind:   MutationTransfer,
			From:   t.spec.From,
			To:     t.spec.To,
			Amount: q,
		})
		t.moved += q
		t.elapsed++
		t.remaining--
		if t.remaining == 0 || t.moved == t.spec.Total {
			t.phase = Finalizing
		}

	case Finalizing:
		rest := t.spec.Total - t.moved
		p, s := SplitRemainder(rest)
		t.split = [2]uint64{p, s}
		if rest > 0 {
			post(Mutation{
				Effect: t.id,
				Kind:   MutationSplit,
				From:   t.spec.From,
				To:     t.spec.SplitPrimary,
				Alt:    t.spec.SplitSecondary,
				Amount: rest,
			})
		}
		t.phase = Done

	case Done:
	}
}
