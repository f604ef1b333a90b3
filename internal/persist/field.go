// Package persist binds observable cells to keys in a durable store.
//
// A Field loads its value once when it is created and afterwards behaves like
// the number it holds. Writes reach the store only when the owning Registry
// runs a flush pass, which the engine does at every transaction boundary.
package persist

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/constraints"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/cell"
)

// Field is a persisted integer bound to a store key.
type Field[T constraints.Integer] struct {
	cell *cell.Cell[T]
	key  string
	def  T
	reg  *Registry

	mu        sync.Mutex
	persisted string
	inStore   bool
}

// NewField registers a field under key and loads it from the registry's
// store. A missing or malformed record leaves the field at def.
func NewField[T constraints.Integer](ctx context.Context, reg *Registry, key string, def T) *Field[T] {
	f := &Field[T]{
		cell: cell.Raw(def),
		key:  key,
		def:  def,
		reg:  reg,
	}
	reg.register(f)
	f.Load(ctx)
	return f
}

// Key returns the store key.
func (f *Field[T]) Key() string { return f.key }

func (f *Field[T]) Get() T { return f.cell.Get() }
func (f *Field[T]) Set(v T) { f.cell.Set(v) }
func (f *Field[T]) Update(fn func(*T)) { f.cell.Update(fn) }
func (f *Field[T]) Modify(fn func(T) T) T { return f.cell.Modify(fn) }
func (f *Field[T]) MakeReader() cell.Reader[T] { return f.cell.MakeReader() }

func (f *Field[T]) Add(d T) { cell.Add[T](f, d) }
func (f *Field[T]) Sub(d T) { cell.Sub[T](f, d) }
func (f *Field[T]) SaturatingSub(d T) T { return cell.SaturatingSub[T](f, d) }
func (f *Field[T]) Mul(d T) { cell.Mul[T](f, d) }
func (f *Field[T]) Rem(d T) { cell.Rem[T](f, d) }
func (f *Field[T]) Compare(v T) int { return cell.Compare[T](f, v) }
func (f *Field[T]) Equal(v T) bool { return cell.Equal[T](f, v) }
func (f *Field[T]) Less(v T) bool { return cell.Less[T](f, v) }
func (f *Field[T]) Greater(v T) bool { return cell.Greater[T](f, v) }

func (f *Field[T]) String() string {
	return encode(f.Get())
}

// Dirty reports whether the in-memory value differs from the last value the
// store is known to hold.
func (f *Field[T]) Dirty() bool {
	_, dirty := f.pending()
	return dirty
}

// Flush writes the current value under the key right away.
// On failure the field stays dirty and the error is returned.
func (f *Field[T]) Flush(ctx context.Context) error {
	text := encode(f.Get())
	if err := f.reg.store.SetText(ctx, f.key, text); err != nil {
		return fmt.Errorf("flush %s: %w", f.key, err)
	}
	f.markFlushed(text)
	return nil
}

// Load re-reads the store and overwrites the cell.
func (f *Field[T]) Load(ctx context.Context) {
	text, ok, err := f.reg.store.GetText(ctx, f.key)
	if err != nil {
		f.reg.log.Warn("persisted field unreadable, using default", "key", f.key, "error", err)
		ok = false
	}

	v := f.def
	if ok {
		parsed, valid := decode[T](text)
		if valid {
			v = parsed
		} else {
			f.reg.log.Warn("persisted field malformed, using default", "key", f.key, "record", text)
			ok = false
		}
	}
	f.cell.Set(v)

	f.mu.Lock()
	f.persisted, f.inStore = text, ok
	f.mu.Unlock()
}

func (f *Field[T]) pending() (string, bool) {
	text := encode(f.Get())
	f.mu.Lock()
	defer f.mu.Unlock()
	return text, !f.inStore || text != f.persisted
}

func (f *Field[T]) markFlushed(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted, f.inStore = text, true
}

func (f *Field[T]) destroy() { f.cell.Destroy() }
