package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MRamiBalles/tofuwabohu/server/internal/infra/storage"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

// flusher is the type-erased view of a Field the registry flushes.
type flusher interface {
	Key() string
	pending() (text string, dirty bool)
	markFlushed(text string)
	destroy()
}

// Registry owns a store and every Field created against it. It is the set a
// flush pass walks; there is no process-wide registry.
type Registry struct {
	store storage.Store
	log   *logger.Logger

	mu     sync.Mutex
	fields []flusher
	keys   map[string]struct{}
}

// NewRegistry creates an empty registry bound to store.
func NewRegistry(store storage.Store, log *logger.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log,
		keys:  make(map[string]struct{}),
	}
}

func (r *Registry) register(f flusher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.keys[f.Key()]; dup {
		panic(fmt.Sprintf("persist: field %q registered twice", f.Key()))
	}
	r.keys[f.Key()] = struct{}{}
	r.fields = append(r.fields, f)
}

func (r *Registry) snapshot() []flusher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]flusher(nil), r.fields...)
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []string {
	fields := r.snapshot()
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key()
	}
	return keys
}

// Dirty returns the keys whose values have not reached the store yet.
func (r *Registry) Dirty() []string {
	var keys []string
	for _, f := range r.snapshot() {
		if _, dirty := f.pending(); dirty {
			keys = append(keys, f.Key())
		}
	}
	return keys
}

// Release destroys every field's cell and forgets the fields. Readers made
// from them report absent afterwards. Call it after the final flush.
func (r *Registry) Release() {
	r.mu.Lock()
	fields := r.fields
	r.fields = nil
	r.keys = make(map[string]struct{})
	r.mu.Unlock()

	for _, f := range fields {
		f.destroy()
	}
}

// KeyError is a write failure for one key.
type KeyError struct {
	Key string
	Err error
}

func (e KeyError) Error() string { return fmt.Sprintf("flush %s: %v", e.Key, e.Err) }
func (e KeyError) Unwrap() error { return e.Err }

// Report describes one flush pass.
type Report struct {
	Tick    uint64
	Written []string
	Failed  []KeyError
	// Err is set when the pass as a whole could not commit; in that case
	// Written is empty and every dirty field stays dirty.
	Err error
}

// OK reports whether every dirty field reached the store.
func (rep Report) OK() bool {
	return rep.Err == nil && len(rep.Failed) == 0
}

// Error joins every failure of the pass, or returns nil.
func (rep Report) Error() error {
	errs := make([]error, 0, len(rep.Failed)+1)
	if rep.Err != nil {
		errs = append(errs, rep.Err)
	}
	for _, kerr := range rep.Failed {
		errs = append(errs, kerr)
	}
	return errors.Join(errs...)
}

type pendingWrite struct {
	f    flusher
	text string
}

// Flush writes every dirty field in one pass. Stores implementing
// storage.Batcher get a single transaction so that external readers see the
// pass whole or not at all. A key that fails to write stays dirty; the pass
// carries on with the next key.
func (r *Registry) Flush(ctx context.Context, tick uint64) Report {
	rep := Report{Tick: tick}

	var writes []pendingWrite
	for _, f := range r.snapshot() {
		if text, dirty := f.pending(); dirty {
			writes = append(writes, pendingWrite{f: f, text: text})
		}
	}
	if len(writes) == 0 {
		return rep
	}

	batcher, ok := r.store.(storage.Batcher)
	if !ok {
		for _, w := range writes {
			if err := r.store.SetText(ctx, w.f.Key(), w.text); err != nil {
				rep.Failed = append(rep.Failed, KeyError{Key: w.f.Key(), Err: err})
				continue
			}
			w.f.markFlushed(w.text)
			rep.Written = append(rep.Written, w.f.Key())
		}
		return rep
	}

	batch, err := batcher.Begin(ctx, tick)
	if err != nil {
		rep.Err = err
		return rep
	}

	var staged []pendingWrite
	for _, w := range writes {
		if err := batch.SetText(ctx, w.f.Key(), w.text); err != nil {
			rep.Failed = append(rep.Failed, KeyError{Key: w.f.Key(), Err: err})
			continue
		}
		staged = append(staged, w)
	}

	if err := batch.Commit(); err != nil {
		rep.Err = err
		return rep
	}
	for _, w := range staged {
		w.f.markFlushed(w.text)
		rep.Written = append(rep.Written, w.f.Key())
	}
	return rep
}
