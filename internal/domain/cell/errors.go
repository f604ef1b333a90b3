package cell

import "fmt"

// InvariantViolation is raised (as a panic) when a programming contract is
// broken: use of a destroyed cell, unsigned underflow, overflow, division by
// zero. It is never returned as an error.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

func violate(op, format string, args ...any) {
	panic(&InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)})
}
