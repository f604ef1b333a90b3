package coop

import "github.com/MRamiBalles/tofuwabohu/server/internal/effects"

// Reconcile settles chicks left in incubation by a previous run. Hatch
// effects live only in memory, so whatever they had not moved when the
// process stopped is split at once, with the odd chick going to the chickens.
// It returns the number of chicks settled.
func Reconcile(s *State) uint64 {
	s.Lock()
	defer s.Unlock()

	orphaned := s.Incubating.Get()
	if orphaned == 0 {
		return 0
	}
	m := effects.Mutation{
		Kind:   effects.MutationSplit,
		From:   Incubating,
		To:     Chickens,
		Alt:    Eggs,
		Amount: orphaned,
	}
	taken, err := m.Apply(s)
	if err != nil {
		// every counter above is registered by NewState
		panic(err)
	}
	return taken
}
