// Package entitycache implements read-through/write-through caching of
// individual records and their declared relationships over a key-value
// backend, with precise delete-on-write invalidation.
//
// # Overview
//
// The package sits between an application's domain-object layer (the
// record store) and a cache backend. It covers three tightly coupled
// responsibilities:
//
//   - per-unit-of-work memoization that deduplicates backend reads within
//     one logical request (see the cache package's Memoizer)
//   - batched fetch and miss resolution: many ids become one backend
//     multi-read and at most one fallback bulk load
//   - deterministic keys for primary, secondary-index and denormalized
//     attribute lookups, expired exactly when a record changes
//
// # Declaring Types
//
// Each cacheable type registers a TypeSpec describing its identity,
// secondary indexes, attributes and relationships:
//
//	registry := entitycache.NewRegistry()
//	registry.MustRegister(entitycache.TypeSpec{
//		Name: "blog",
//		New:  func() entitycache.Record { return &Blog{} },
//		Indexes: [][]string{{"slug"}},
//		Relationships: []entitycache.RelationshipSpec{
//			{Name: "comments", Kind: entitycache.HasMany, Mode: entitycache.Embedded,
//				Target: "comment", ForeignKey: "blog_id"},
//			{Name: "author", Kind: entitycache.BelongsTo, Mode: entitycache.Referenced,
//				Target: "author", ForeignKey: "author_id"},
//		},
//	})
//
// Record types satisfy the Record interface and embed Slots (tagged
// `msgpack:"-"`) for transient association storage.
//
// # Fetching
//
//	blog, err := ec.Fetch(ctx, "blog", "1")            // ErrNotFound on absence
//	blog, err = ec.FetchByID(ctx, "blog", "1")         // nil on absence
//	byID, err := ec.FetchMulti(ctx, "blog", ids)       // one multi-read + one bulk load
//	blogs, err := ec.FetchByIndex(ctx, "blog", []string{"slug"}, []any{"hello"})
//	title, err := ec.FetchAttribute(ctx, "blog", "title", []any{"hello"})
//
// Embedded relationships are materialized into the parent's cached value at
// miss-resolution time; referenced relationships cache only id lists and
// resolve lazily through FetchRelated or in a batch through Prefetch, which
// issues exactly one batched fetch per relationship hop for any number of
// parent records.
//
// # Invalidation
//
// The record store invokes OnCommit after every persisted mutation and
// OnTouch after touch-only updates, handing over the pre-mutation field
// snapshot. The engine derives and deletes the primary key, the secondary
// keys for both current and previous field values, and the attribute keys
// for previous values. Deletions are best-effort per key: failures are
// logged and counted, never fatal to sibling deletions.
//
// # Consistency Limits
//
// Invalidation is best-effort delete-on-write; the package does not provide
// cache coherence across nodes or strong consistency under concurrent
// writers to the same record (last invalidation wins). Read deduplication
// applies within one memoization scope only: concurrent in-flight backend
// calls for the same key across different scopes are not coalesced.
//
// # Error Handling
//
// UsageError reports API misuse (unknown types, unknown relationship names,
// unsupported prefetch shapes) and is never retried. Id mismatches between
// requested and loaded records are logged as integrity warnings and
// counted, but reads still return their best-effort result. Backend errors
// propagate unchanged on read and write paths; a disabled backend (see the
// cacheinfra noop implementation) makes every operation a clean
// passthrough to the record store.
package entitycache
