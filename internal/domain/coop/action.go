package coop

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// ErrActionRejected is returned when an action's preconditions do not hold.
var ErrActionRejected = errors.New("action rejected")

// MaxActionCount bounds Action.Count. Actions run under the state lock.
const MaxActionCount = 1000

// ActionKind tags an Action.
type ActionKind int

const (
	// LayEgg adds one egg per chicken that is not sitting on a nest.
	LayEgg ActionKind = iota + 1
	// BuildNest turns NestCost eggs into a nest, at most one per chicken.
	// It needs strictly more than NestCost eggs on hand.
	BuildNest
)

func (k ActionKind) String() string {
	switch k {
	case LayEgg:
		return "lay_egg"
	case BuildNest:
		return "build_nest"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is a player command applied during a tick.
type Action struct {
	Kind ActionKind `json:"kind"`
	// Count repeats the action; zero means once.
	Count uint64 `json:"count,omitempty"`
}

func (a Action) times() uint64 {
	return max(a.Count, 1)
}

// ParseAction reads "lay", "lay:5", "nest" or "nest:2". Counts above
// MaxActionCount are refused.
func ParseAction(s string) (Action, error) {
	name, count, hasCount := strings.Cut(strings.TrimSpace(s), ":")
	var a Action
	switch strings.ToLower(name) {
	case "lay", "lay_egg", "egg":
		a.Kind = LayEgg
	case "nest", "build_nest":
		a.Kind = BuildNest
	default:
		return Action{}, fmt.Errorf("unknown action %q", name)
	}
	if hasCount {
		n, err := strconv.ParseUint(count, 10, 64)
		if err != nil || n == 0 {
			return Action{}, fmt.Errorf("bad count in action %q", s)
		}
		if n > MaxActionCount {
			return Action{}, fmt.Errorf("count in action %q exceeds %d", s, MaxActionCount)
		}
		a.Count = n
	}
	return a, nil
}

// Apply performs a on s. The caller must hold s's lock.
// A repeated action stops at the first repetition whose preconditions fail;
// the ones before it stay applied.
func Apply(s *State, a Action) error {
	if a.Count > MaxActionCount {
		return fmt.Errorf("%w: count %d exceeds %d", ErrActionRejected, a.Count, MaxActionCount)
	}

	switch a.Kind {
	case LayEgg:
		layers := s.Chickens.Get() - min(s.Nests.Get(), s.Chickens.Get())
		hi, laid := bits.Mul64(layers, a.times())
		eggs, carry := bits.Add64(s.Eggs.Get(), laid, 0)
		if hi != 0 || carry != 0 {
			return fmt.Errorf("%w: laying %d x %d eggs overflows the egg count", ErrActionRejected, layers, a.times())
		}
		s.Eggs.Set(eggs)
		return nil

	case BuildNest:
		for i := uint64(0); i < a.times(); i++ {
			if eggs := s.Eggs.Get(); eggs <= NestCost {
				return fmt.Errorf("%w: building a nest needs more than %d eggs, have %d", ErrActionRejected, NestCost, eggs)
			}
			if s.Nests.Get() >= s.Chickens.Get() {
				return fmt.Errorf("%w: every chicken already has a nest", ErrActionRejected)
			}
			s.Eggs.Sub(NestCost)
			s.Nests.Add(1)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %v", ErrActionRejected, a.Kind)
}
