// Package cache provides the backend contract, deterministic key derivation
// and the per-unit-of-work memoization overlay used by the entity cache.
//
// # Overview
//
// Three pieces live here:
//
//   - Backend: the narrow key-value interface every cache store implements
//     (in-process sturdyc, shared Redis, or the disabled passthrough)
//   - KeyCodec: pure derivation of primary, secondary-index and attribute
//     cache keys
//   - Memoizer: a Backend wrapper that deduplicates reads within one
//     logical unit of work
//
// # Key Derivation
//
// Keys are a deterministic function of (namespace, type identity, key kind,
// payload), joined with the "::" separator:
//
//	codec := cache.NewKeyCodec("myapp")
//	codec.PrimaryKey("blog", "42")                              // myapp::blog::blob::42
//	codec.SecondaryKey("blog", []string{"slug"}, []any{"hi"})   // myapp::blog::index::slug::hi
//	codec.AttributeKey("blog", "title", []string{"id"}, []any{"42"})
//
// The kind tag keeps the three lookup families collision-free for the same
// type, and the namespace plus normalized type identity keep distinct types
// apart. Payload values are rendered in a canonical, order-preserving
// encoding: field order is part of a key's identity, so declared field
// order must stay stable across deployments.
//
// # Memoization Scopes
//
// A Memoizer scope corresponds to one unit of work (one request, one job):
//
//	err := memo.Memoize(ctx, func(ctx context.Context) error {
//		v, ok, err := memo.Read(ctx, key) // backend hit
//		v, ok, err = memo.Read(ctx, key)  // overlay hit, backend untouched
//		return err
//	})
//
// The scope table is attached to the context rather than any ambient
// process-global state, so concurrent units of work never observe each
// other's entries, and the table is discarded on every exit path.
//
// Negative results memoize too: a key the backend did not have is answered
// as absent from the overlay for the rest of the scope. ReadMulti is the
// deliberate exception, it merges overlay hits with one backend multi-read
// but does not warm the per-key table from batch results.
//
// # Configuration
//
// Config selects the backend and carries env tags for twelve-factor style
// deployment; FromEnv reads and validates it:
//
//	cfg, err := cache.FromEnv()
//
// # Error Handling
//
// Backend errors propagate unchanged through the overlay. A missing key is
// not an error anywhere in this package.
package cache
