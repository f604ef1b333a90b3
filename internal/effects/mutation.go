package effects

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/cell"
)

// Counter names one numeric field of the shared aggregate.
type Counter string

// Aggregate is the lock-guarded state shared by the tick body and every
// in-flight effect.
type Aggregate interface {
	sync.Locker
	Counter(name Counter) (cell.Numeric[uint64], bool)
}

// MutationKind tags a Mutation.
type MutationKind int

const (
	// MutationTransfer moves Amount from From to To.
	MutationTransfer MutationKind = iota + 1
	// MutationCredit adds Amount to To.
	MutationCredit
	// MutationDebit removes up to Amount from From.
	MutationDebit
	// MutationSplit takes up to Amount from From and splits it between To
	// (which receives the odd unit) and Alt.
	MutationSplit
)

func (k MutationKind) String() string {
	switch k {
	case MutationTransfer:
		return "transfer"
	case MutationCredit:
		return "credit"
	case MutationDebit:
		return "debit"
	case MutationSplit:
		return "split"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

// Mutation is a typed change request posted by an effect. Mutations are
// applied by the aggregate's owner while holding its lock. All kinds use
// saturating subtraction, so they commute and never underflow.
type Mutation struct {
	Effect uuid.UUID
	Kind   MutationKind
	From   Counter
	To     Counter
	Alt    Counter
	Amount uint64
}

// Apply performs the mutation. The caller must hold agg's lock. It returns
// the amount actually taken from (or, for credits, added to) the state.
func (m Mutation) Apply(agg Aggregate) (uint64, error) {
	switch m.Kind {
	case MutationCredit:
		to, err := counter(agg, m.To)
		if err != nil {
			return 0, err
		}
		cell.Add(to, m.Amount)
		return m.Amount, nil

	case MutationDebit:
		from, err := counter(agg, m.From)
		if err != nil {
			return 0, err
		}
		return cell.SaturatingSub(from, m.Amount), nil

	case MutationTransfer:
		from, err := counter(agg, m.From)
		if err != nil {
			return 0, err
		}
		to, err := counter(agg, m.To)
		if err != nil {
			return 0, err
		}
		taken := cell.SaturatingSub(from, m.Amount)
		cell.Add(to, taken)
		return taken, nil

	case MutationSplit:
		from, err := counter(agg, m.From)
		if err != nil {
			return 0, err
		}
		primary, err := counter(agg, m.To)
		if err != nil {
			return 0, err
		}
		secondary, err := counter(agg, m.Alt)
		if err != nil {
			return 0, err
		}
		taken := cell.SaturatingSub(from, m.Amount)
		p, s := SplitRemainder(taken)
		cell.Add(primary, p)
		cell.Add(secondary, s)
		return taken, nil
	}
	return 0, fmt.Errorf("unknown mutation kind %v", m.Kind)
}

func counter(agg Aggregate, name Counter) (cell.Numeric[uint64], error) {
	c, ok := agg.Counter(name)
	if !ok {
		return nil, fmt.Errorf("unknown counter %q", name)
	}
	return c, nil
}

// Queue collects mutations from concurrently stepping effects for a single
// consumer that drains it once per tick.
type Queue struct {
	mu      sync.Mutex
	pending []Mutation
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make([]Mutation, 0, 64)}
}

// Post appends a mutation. Safe for concurrent use.
func (q *Queue) Post(m Mutation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, m)
}

// Drain removes and returns everything posted so far.
func (q *Queue) Drain() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = make([]Mutation, 0, cap(out))
	return out
}

// Len returns the number of pending mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
