package cache

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// memoScopeKey is the context key carrying the active memoization table.
type memoScopeKey struct{}

// memoEntry records the outcome of a backend read so that a resolved
// absence is distinguishable from "not yet read in this scope".
type memoEntry struct {
	value any
	found bool
}

// memoTable is one scope's overlay table. It is owned by a single unit of
// work but backed by a concurrent map so that a scope handed to helper
// goroutines stays safe.
type memoTable struct {
	entries *xsync.MapOf[string, memoEntry]
}

func newMemoTable() *memoTable {
	return &memoTable{entries: xsync.NewMapOf[string, memoEntry]()}
}

func tableFrom(ctx context.Context) *memoTable {
	tbl, _ := ctx.Value(memoScopeKey{}).(*memoTable)
	return tbl
}

// Memoizer wraps a Backend with a per-unit-of-work memoization overlay.
// Inside a scope, repeated reads of the same key hit the backend at most
// once, including reads that resolved to absence. Outside a scope every
// operation delegates straight to the backend.
//
// Scope state lives on the context, never in ambient process-global
// storage: one context's overlay is invisible to every other context, and
// discarding one scope's table cannot block or affect another scope.
//
// The overlay never masks a backend error; it only avoids redundant calls.
type Memoizer struct {
	backend Backend
}

// NewMemoizer wraps backend with the memoization overlay. The Memoizer is
// itself a Backend, so callers compose it wherever a Backend is expected.
func NewMemoizer(backend Backend) *Memoizer {
	return &Memoizer{backend: backend}
}

var _ Backend = (*Memoizer)(nil)

// Backend returns the wrapped backend, bypassing the overlay. Invalidation
// paths use it so that deletes reach the shared store without touching the
// current unit of work's table.
func (m *Memoizer) Backend() Backend {
	return m.backend
}

// Memoize runs fn inside a memoization scope. The scope's table is
// discarded on every exit path, including a panicking fn. Re-entering while
// a scope is already active is a no-op extension of the existing scope:
// fn runs with the caller's table and nothing is discarded early.
func (m *Memoizer) Memoize(ctx context.Context, fn func(ctx context.Context) error) error {
	if tableFrom(ctx) != nil {
		return fn(ctx)
	}

	tbl := newMemoTable()
	defer tbl.entries.Clear()

	return fn(context.WithValue(ctx, memoScopeKey{}, tbl))
}

// Read returns the value under key, consulting the scope table first when a
// scope is active. A backend miss is memoized too, so negative lookups are
// answered from the overlay for the remainder of the scope.
func (m *Memoizer) Read(ctx context.Context, key string) (any, bool, error) {
	tbl := tableFrom(ctx)
	if tbl == nil {
		return m.backend.Read(ctx, key)
	}

	if e, ok := tbl.entries.Load(key); ok {
		return e.value, e.found, nil
	}

	value, found, err := m.backend.Read(ctx, key)
	if err != nil {
		return nil, false, err
	}
	tbl.entries.Store(key, memoEntry{value: value, found: found})
	return value, found, nil
}

// ReadMulti partitions keys into overlay entries (returned without touching
// the backend) and the rest, which go to the backend in a single multi-read.
//
// Newly fetched pairs are deliberately not written back into the scope
// table: batch reads populate the caller's result set without warming
// single-key memoization. Keys the overlay already resolved to absence are
// excluded from both the result and the backend call.
func (m *Memoizer) ReadMulti(ctx context.Context, keys []string) (map[string]any, error) {
	tbl := tableFrom(ctx)
	if tbl == nil {
		return m.backend.ReadMulti(ctx, keys)
	}

	result := make(map[string]any, len(keys))
	var missing []string
	for _, key := range keys {
		e, ok := tbl.entries.Load(key)
		switch {
		case ok && e.found:
			result[key] = e.value
		case ok:
			// Memoized absence: resolved, nothing to return.
		default:
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		fetched, err := m.backend.ReadMulti(ctx, missing)
		if err != nil {
			return nil, err
		}
		for k, v := range fetched {
			result[k] = v
		}
	}

	return result, nil
}

// Write stores the value in the backend and, when a scope is active, in the
// scope table as well.
func (m *Memoizer) Write(ctx context.Context, key string, value any) error {
	if err := m.backend.Write(ctx, key, value); err != nil {
		return err
	}
	if tbl := tableFrom(ctx); tbl != nil {
		tbl.entries.Store(key, memoEntry{value: value, found: true})
	}
	return nil
}

// Delete removes the key from the scope table (when active) and the backend.
func (m *Memoizer) Delete(ctx context.Context, key string) error {
	if tbl := tableFrom(ctx); tbl != nil {
		tbl.entries.Delete(key)
	}
	return m.backend.Delete(ctx, key)
}

// Clear drops the active scope's table and clears the backend entirely.
// Destructive; intended for test and reset paths only.
func (m *Memoizer) Clear(ctx context.Context) error {
	if tbl := tableFrom(ctx); tbl != nil {
		tbl.entries.Clear()
	}
	return m.backend.Clear(ctx)
}
