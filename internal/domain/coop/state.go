// Package coop holds the chicken-coop simulation: its persistent state, the
// per-tick rule, and the player actions that mutate it.
// It must NOT import network, events or engine.
package coop

import (
	"context"
	"sync"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/cell"
	"github.com/MRamiBalles/tofuwabohu/server/internal/effects"
	"github.com/MRamiBalles/tofuwabohu/server/internal/persist"
)

// Counter names used as store keys and as mutation targets.
const (
	Chickens   effects.Counter = "chickens"
	Nests      effects.Counter = "nests"
	Eggs       effects.Counter = "eggs"
	Breeding   effects.Counter = "breeding"
	Incubating effects.Counter = "incubating"
	Clutches   effects.Counter = "clutches"
)

// State is the aggregate shared by the tick body and in-flight effects.
// Every read-modify-write must happen with the lock held.
type State struct {
	mu sync.Mutex

	Chickens   *persist.Field[uint64]
	Nests      *persist.Field[uint64]
	Eggs       *persist.Field[uint64]
	Breeding   *persist.Field[uint64]
	Incubating *persist.Field[uint64]
	Clutches   *persist.Field[uint64]

	byName map[effects.Counter]*persist.Field[uint64]
}

// NewState registers the coop fields with reg and loads them.
func NewState(ctx context.Context, reg *persist.Registry) *State {
	s := &State{
		Chickens:   persist.NewField[uint64](ctx, reg, string(Chickens), 1),
		Nests:      persist.NewField[uint64](ctx, reg, string(Nests), 0),
		Eggs:       persist.NewField[uint64](ctx, reg, string(Eggs), 0),
		Breeding:   persist.NewField[uint64](ctx, reg, string(Breeding), 0),
		Incubating: persist.NewField[uint64](ctx, reg, string(Incubating), 0),
		Clutches:   persist.NewField[uint64](ctx, reg, string(Clutches), 0),
	}
	s.byName = map[effects.Counter]*persist.Field[uint64]{
		Chickens:   s.Chickens,
		Nests:      s.Nests,
		Eggs:       s.Eggs,
		Breeding:   s.Breeding,
		Incubating: s.Incubating,
		Clutches:   s.Clutches,
	}
	return s
}

func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// Counter implements effects.Aggregate.
func (s *State) Counter(name effects.Counter) (cell.Numeric[uint64], bool) {
	f, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return f, true
}

// Snapshot is a plain copy of the coop counters.
type Snapshot struct {
	Chickens   uint64 `json:"chickens"`
	Nests      uint64 `json:"nests"`
	Eggs       uint64 `json:"eggs"`
	Breeding   uint64 `json:"breeding"`
	Incubating uint64 `json:"incubating"`
	Clutches   uint64 `json:"clutches"`
}

// BreedingPercent is the progress towards the next clutch.
func (s Snapshot) BreedingPercent() uint64 {
	return s.Breeding * 100 / BreedingPerClutch
}

// Snapshot copies the counters under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Chickens:   s.Chickens.Get(),
		Nests:      s.Nests.Get(),
		Eggs:       s.Eggs.Get(),
		Breeding:   s.Breeding.Get(),
		Incubating: s.Incubating.Get(),
		Clutches:   s.Clutches.Get(),
	}
}

// View returns read-only handles for observers on other goroutines.
func (s *State) View() View {
	return View{
		chickens:   s.Chickens.MakeReader(),
		nests:      s.Nests.MakeReader(),
		eggs:       s.Eggs.MakeReader(),
		breeding:   s.Breeding.MakeReader(),
		incubating: s.Incubating.MakeReader(),
		clutches:   s.Clutches.MakeReader(),
	}
}

// View observes the coop through cell readers. It never blocks the tick body
// and never keeps the state alive; individual counters may be read across a
// mutation, so a View snapshot is only consistent between ticks.
type View struct {
	chickens, nests, eggs, breeding, incubating, clutches cell.Reader[uint64]
}

// Snapshot reads every counter. ok is false once the state is gone.
func (v View) Snapshot() (snap Snapshot, ok bool) {
	readers := []struct {
		r   cell.Reader[uint64]
		dst *uint64
	}{
		{v.chickens, &snap.Chickens},
		{v.nests, &snap.Nests},
		{v.eggs, &snap.Eggs},
		{v.breeding, &snap.Breeding},
		{v.incubating, &snap.Incubating},
		{v.clutches, &snap.Clutches},
	}
	for _, rd := range readers {
		val, alive := rd.r.Get()
		if !alive {
			return Snapshot{}, false
		}
		*rd.dst = val
	}
	return snap, true
}
