package coop

import (
	"sync"

	"github.com/MRamiBalles/tofuwabohu/server/internal/effects"
)

// Balance constants.
const (
	BreedingPerClutch = 1000
	ChicksPerClutch   = 10
	HatchTicks        = 7
	NestCost          = 10
)

// Scheduler accepts delayed effects.
type Scheduler interface {
	Schedule(e effects.Effect)
}

// Planner proposes actions for a tick from the current state.
type Planner interface {
	Plan(s Snapshot) []Action
}

// Rejection pairs a refused action with the reason.
type Rejection struct {
	Action Action
	Err    error
}

// TickResult is what one tick of the rules did.
type TickResult struct {
	Tick     uint64
	Clutches uint64
	Hatch    *effects.Transfer
	Applied  []Action
	Rejected []Rejection
	State    Snapshot
}

// Rules advances the coop one tick at a time.
type Rules struct {
	state   *State
	sched   Scheduler
	rate    effects.RateFunc
	planner Planner

	mu      sync.Mutex
	pending []Action
}

// NewRules wires the tick rule to its state and effect scheduler. A nil rate
// uses effects.SteadyRate; a nil planner means only queued actions apply.
func NewRules(state *State, sched Scheduler, rate effects.RateFunc, planner Planner) *Rules {
	if rate == nil {
		rate = effects.SteadyRate
	}
	return &Rules{state: state, sched: sched, rate: rate, planner: planner}
}

// Enqueue queues an action for the next tick.
func (r *Rules) Enqueue(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, a)
}

func (r *Rules) takePending() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// Tick runs the coop rule once with the state lock held:
//
//  1. every full BreedingPerClutch of breeding progress becomes a clutch,
//     consuming one nest per clutch and putting ChicksPerClutch chicks into
//     incubation, which a hatch effect then releases over HatchTicks ticks;
//  2. every nest adds one unit of breeding progress;
//  3. queued actions are applied, then whatever the planner proposes.
func (r *Rules) Tick(tick uint64) TickResult {
	res := TickResult{Tick: tick}
	queued := r.takePending()

	s := r.state
	s.Lock()

	if s.Breeding.Greater(BreedingPerClutch) {
		n := s.Breeding.Get() / BreedingPerClutch
		s.Breeding.Sub(n * BreedingPerClutch)
		s.Clutches.Add(n)
		s.Nests.SaturatingSub(n)

		chicks := n * ChicksPerClutch
		s.Incubating.Add(chicks)
		res.Clutches = n
		res.Hatch = effects.NewTransfer(effects.TransferSpec{
			Total:          chicks,
			From:           Incubating,
			To:             Chickens,
			SplitPrimary:   Chickens,
			SplitSecondary: Eggs,
			Rate:           r.rate,
			Ticks:          HatchTicks,
		})
	}

	s.Breeding.Add(s.Nests.Get())

	r.apply(&res, queued)
	if r.planner != nil {
		r.apply(&res, r.planner.Plan(s.snapshotLocked()))
	}

	res.State = s.snapshotLocked()
	s.Unlock()

	if res.Hatch != nil {
		r.sched.Schedule(res.Hatch)
	}
	return res
}

func (r *Rules) apply(res *TickResult, actions []Action) {
	for _, a := range actions {
		if err := Apply(r.state, a); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Action: a, Err: err})
			continue
		}
		res.Applied = append(res.Applied, a)
	}
}
