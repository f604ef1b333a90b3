// Package cell provides observable value cells with weak, non-owning readers.
// This package is PURE and must NOT import any infrastructure packages.
//
// Cells live in an Arena of slots. The owning *Cell holds a slot index and the
// slot generation it was created with; a Reader holds the same pair. Destroying
// a cell bumps the slot generation, so every reader derived from it reports
// absence from then on, even after the slot is handed to another cell.
package cell

import "sync"

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Arena owns the slots of a group of cells.
type Arena[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []int
}

// NewArena creates an arena with room for capacity cells before it grows.
func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		slots: make([]slot[T], 0, capacity),
		free:  make([]int, 0, capacity),
	}
}

// Raw places val in a free slot and returns its owning cell.
func (a *Arena[T]) Raw(val T) *Cell[T] {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx int
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		idx = len(a.slots) - 1
	}

	s := &a.slots[idx]
	s.value = val
	s.live = true
	return &Cell[T]{arena: a, index: idx, gen: s.gen}
}

// Live returns the number of cells currently alive in the arena.
func (a *Arena[T]) Live() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.slots) - len(a.free)
}

// load returns the slot value if gen still matches.
func (a *Arena[T]) load(idx int, gen uint32) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var zero T
	if idx < 0 || idx >= len(a.slots) {
		return zero, false
	}
	s := a.slots[idx]
	if !s.live || s.gen != gen {
		return zero, false
	}
	return s.value, true
}

func (a *Arena[T]) store(idx int, gen uint32, val T) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.slots[idx]
	if !s.live || s.gen != gen {
		return false
	}
	s.value = val
	return true
}

func (a *Arena[T]) release(idx int, gen uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.slots[idx]
	if !s.live || s.gen != gen {
		return
	}
	var zero T
	s.value = zero
	s.live = false
	s.gen++
	a.free = append(a.free, idx)
}

// Cell is the single owning writer of one slot.
type Cell[T any] struct {
	arena *Arena[T]
	index int
	gen   uint32
}

// Raw creates a cell in its own one-slot arena.
func Raw[T any](val T) *Cell[T] {
	return NewArena[T](1).Raw(val)
}

// New creates a cell and a first reader for it.
func New[T any](val T) (*Cell[T], Reader[T]) {
	c := Raw(val)
	return c, c.MakeReader()
}

// MakeReader returns a new weak reader. Readers are plain values; dropping
// one revokes it without affecting the others.
func (c *Cell[T]) MakeReader() Reader[T] {
	return Reader[T]{arena: c.arena, index: c.index, gen: c.gen}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	v, ok := c.arena.load(c.index, c.gen)
	if !ok {
		violate("cell.Get", "use of destroyed cell %d", c.index)
	}
	return v
}

// Set replaces the current value.
func (c *Cell[T]) Set(val T) {
	if !c.arena.store(c.index, c.gen, val) {
		violate("cell.Set", "use of destroyed cell %d", c.index)
	}
}

// Update runs a read-modify-write on the value. It is not atomic against
// other writers; callers that share a cell must hold their own lock.
func (c *Cell[T]) Update(f func(*T)) {
	val := c.Get()
	f(&val)
	c.Set(val)
}

// Modify replaces the value with f(old) and returns the new value.
func (c *Cell[T]) Modify(f func(T) T) T {
	next := f(c.Get())
	c.Set(next)
	return next
}

// Alive reports whether the cell has not been destroyed.
func (c *Cell[T]) Alive() bool {
	_, ok := c.arena.load(c.index, c.gen)
	return ok
}

// Destroy ends the cell's life. Readers report absence afterwards.
func (c *Cell[T]) Destroy() {
	c.arena.release(c.index, c.gen)
}

// Reader observes a cell without owning it.
type Reader[T any] struct {
	arena *Arena[T]
	index int
	gen   uint32
}

// Get returns the latest value, or false once the cell is gone.
func (r Reader[T]) Get() (T, bool) {
	if r.arena == nil {
		var zero T
		return zero, false
	}
	return r.arena.load(r.index, r.gen)
}
