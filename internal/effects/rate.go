package effects

import "fmt"

// RateFunc returns how much of total an effect moves on its elapsed-th tick
// (elapsed starts at 0). The effect clamps the answer: zero, or more than
// what remains, becomes a flat 1.
type RateFunc func(total, elapsed uint64) uint64

const (
	steadyScale   = 100
	steadyDivisor = 700
	rampDivisor   = 28
)

// SteadyRate moves total*100/700 per tick, about a seventh of the total.
func SteadyRate(total, _ uint64) uint64 {
	return mulDiv(total, steadyScale, steadyDivisor)
}

// RampRate moves total*(elapsed+1)/28 per tick: 1/28, 2/28, ... 7/28, which
// sums to the whole total over seven ticks.
func RampRate(total, elapsed uint64) uint64 {
	k := elapsed + 1
	if k >= rampDivisor {
		return total
	}
	return mulDiv(total, k, rampDivisor)
}

// mulDiv is floor(n*k/d) without overflowing for k <= d.
func mulDiv(n, k, d uint64) uint64 {
	return (n/d)*k + (n%d)*k/d
}

// RateByName resolves a configured curve name.
func RateByName(name string) (RateFunc, error) {
	switch name {
	case "", "steady":
		return SteadyRate, nil
	case "ramp":
		return RampRate, nil
	default:
		return nil, fmt.Errorf("unknown rate curve %q", name)
	}
}

// quantity applies the clamping rule to a raw rate.
func quantity(rate RateFunc, total, elapsed, remaining uint64) uint64 {
	q := rate(total, elapsed)
	if q == 0 || q > remaining {
		q = 1
	}
	return min(q, remaining)
}

// SplitRemainder splits n in two halves. The odd unit always goes to the
// primary side.
func SplitRemainder(n uint64) (primary, secondary uint64) {
	secondary = n / 2
	return n - secondary, secondary
}
