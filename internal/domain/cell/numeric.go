package cell

import (
	"cmp"

	"golang.org/x/exp/constraints"
)

// Numeric is anything holding an integer that can be read and updated in
// place. Both *Cell[T] and persist.Field[T] satisfy it.
type Numeric[T constraints.Integer] interface {
	Get() T
	Update(func(*T))
}

// Add is the += operator.
func Add[T constraints.Integer](n Numeric[T], d T) {
	n.Update(func(v *T) {
		r := *v + d
		if (d > 0 && r < *v) || (d < 0 && r > *v) {
			violate("cell.Add", "overflow adding %v to %v", d, *v)
		}
		*v = r
	})
}

// Sub is the -= operator. Going below the type's minimum (zero for unsigned
// types) is an invariant violation; use SaturatingSub or check first.
func Sub[T constraints.Integer](n Numeric[T], d T) {
	n.Update(func(v *T) {
		r := *v - d
		if (d > 0 && r > *v) || (d < 0 && r < *v) {
			violate("cell.Sub", "underflow subtracting %v from %v", d, *v)
		}
		*v = r
	})
}

// SaturatingSub subtracts at most d without going below zero and returns the
// amount actually taken.
func SaturatingSub[T constraints.Integer](n Numeric[T], d T) T {
	var taken T
	n.Update(func(v *T) {
		if d <= 0 || *v <= 0 {
			return
		}
		taken = min(d, *v)
		*v -= taken
	})
	return taken
}

// Mul is the *= operator.
func Mul[T constraints.Integer](n Numeric[T], d T) {
	n.Update(func(v *T) {
		r := *v * d
		if d != 0 && r/d != *v {
			violate("cell.Mul", "overflow multiplying %v by %v", *v, d)
		}
		*v = r
	})
}

// Rem is the %= operator.
func Rem[T constraints.Integer](n Numeric[T], d T) {
	n.Update(func(v *T) {
		if d == 0 {
			violate("cell.Rem", "remainder by zero")
		}
		*v %= d
	})
}

// Compare compares the current value with v.
func Compare[T constraints.Integer](n Numeric[T], v T) int {
	return cmp.Compare(n.Get(), v)
}

func Equal[T constraints.Integer](n Numeric[T], v T) bool { return n.Get() == v }
func Less[T constraints.Integer](n Numeric[T], v T) bool { return n.Get() < v }
func Greater[T constraints.Integer](n Numeric[T], v T) bool { return n.Get() > v }
