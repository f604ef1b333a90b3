package effects

import (
	"sync"

	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

// TickReport summarizes one scheduler tick.
type TickReport struct {
	Tick      uint64
	Stepped   int
	Applied   int
	Completed []Effect
	Errors    []error
}

// Scheduler steps in-flight effects once per tick.
//
// Effects scheduled while tick N runs start stepping on tick N+1, so they
// see the state committed at the end of tick N. There is no ordering among
// effects stepping in the same tick; their mutations commute.
type Scheduler struct {
	logger *logger.Logger
	queue  *Queue

	mu       sync.Mutex
	active   []Effect
	incoming []Effect
}

// NewScheduler creates an idle scheduler.
func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log,
		queue:  NewQueue(),
	}
}

// Schedule registers an effect. It starts stepping on the next tick.
func (s *Scheduler) Schedule(e Effect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incoming = append(s.incoming, e)
}

// InFlight returns the number of effects not yet done.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) + len(s.incoming)
}

// Tick steps every active effect concurrently, then applies the mutations
// they posted to agg while holding its lock for the whole batch. The lock is
// released before Tick returns.
func (s *Scheduler) Tick(tick uint64, agg Aggregate) TickReport {
	rep := TickReport{Tick: tick}

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range active {
		wg.Add(1)
		go func(e Effect) {
			defer wg.Done()
			e.Step(tick, s.queue.Post)
		}(e)
	}
	wg.Wait()
	rep.Stepped = len(active)

	mutations := s.queue.Drain()
	if len(mutations) > 0 {
		agg.Lock()
		for _, m := range mutations {
			if _, err := m.Apply(agg); err != nil {
				rep.Errors = append(rep.Errors, err)
				s.logger.Error("effect mutation rejected", "effect", m.Effect, "kind", m.Kind, "error", err)
				continue
			}
			rep.Applied++
		}
		agg.Unlock()
	}

	kept := active[:0:0]
	for _, e := range active {
		if e.Phase() == Done {
			rep.Completed = append(rep.Completed, e)
			continue
		}
		kept = append(kept, e)
	}

	s.mu.Lock()
	s.active = append(kept, s.incoming...)
	s.incoming = nil
	s.mu.Unlock()

	return rep
}
