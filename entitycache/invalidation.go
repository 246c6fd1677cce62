package entitycache

import (
	"context"

	"github.com/goliatone/go-entity-cache/cache"
)

// Mutation carries a committed record change from the record store into the
// invalidation engine: the post-commit record, the pre-mutation values of
// the fields that changed, and whether the record was destroyed.
type Mutation struct {
	Record Record

	// Previous maps changed field names to their pre-mutation values.
	// Unchanged fields are omitted; their current value doubles as their
	// previous value. A record created this transaction carries a nil or
	// empty previous id.
	Previous map[string]any

	Destroyed bool
}

// NewlyCreated reports whether the mutation created the record this
// transaction: its id was tracked as changed from empty, it has an id now,
// and it was not destroyed.
func (m Mutation) NewlyCreated() bool {
	if m.Destroyed || m.Record.EntityID() == "" {
		return false
	}
	prev, tracked := m.Previous["id"]
	return tracked && idString(prev) == ""
}

// previousValue returns a field's pre-mutation value: the tracked previous
// value when the field changed, else the current value.
func (m Mutation) previousValue(field string) any {
	if v, ok := m.Previous[field]; ok {
		return v
	}
	return m.Record.EntityFields()[field]
}

// OnCommit is the hook the record store must invoke after every committed
// mutation. It expires the primary, secondary-index and attribute keys the
// mutation made stale, including keys derived from pre-mutation field
// values. Each deletion is best-effort: a failing delete is logged and
// counted, and the remaining deletions still run, so one bad key cannot
// block sibling invalidations.
//
// Deletions go to the backend directly, never through the memoization
// overlay: overlay tables are scoped to their own unit of work and are
// discarded when it completes.
func (c *Cache) OnCommit(ctx context.Context, mut Mutation) error {
	spec, err := c.lookupSpec("on_commit", mut.Record.EntityType())
	if err != nil {
		return err
	}

	backend := c.overlay.Backend()
	created := mut.NewlyCreated()
	fields := mut.Record.EntityFields()

	if !spec.NoPrimaryIndex {
		key := c.keys.PrimaryKey(spec.Name, mut.Record.EntityID())
		c.expire(ctx, backend, "primary", key)
	}

	for _, group := range spec.Indexes {
		var currentKey string
		if !mut.Destroyed {
			values := make([]any, len(group))
			for i, f := range group {
				values[i] = fields[f]
			}
			currentKey = c.keys.SecondaryKey(spec.Name, group, values)
			c.expire(ctx, backend, "secondary", currentKey)
		}

		if created {
			continue
		}
		previous := make([]any, len(group))
		for i, f := range group {
			previous[i] = mut.previousValue(f)
		}
		if previousKey := c.keys.SecondaryKey(spec.Name, group, previous); previousKey != currentKey {
			c.expire(ctx, backend, "secondary", previousKey)
		}
	}

	if !created {
		for _, attr := range spec.Attributes {
			previous := make([]any, len(attr.Fields))
			for i, f := range attr.Fields {
				previous[i] = mut.previousValue(f)
			}
			c.expire(ctx, backend, "attribute", c.keys.AttributeKey(spec.Name, attr.Name, attr.Fields, previous))
		}
	}

	return nil
}

// OnTouch is the hook for touch-only updates: no field values changed, so
// the current and previous snapshots coincide and the record's existing
// keys simply expire.
func (c *Cache) OnTouch(ctx context.Context, rec Record) error {
	return c.OnCommit(ctx, Mutation{Record: rec})
}

// expire deletes one key from the backend, logging and counting a failure
// instead of propagating it.
func (c *Cache) expire(ctx context.Context, backend cache.Backend, index, key string) {
	if err := backend.Delete(ctx, key); err != nil {
		metricInvalidationErrors.WithLabelValues(index).Inc()
		c.log.Warn().
			Err(err).
			Str("index", index).
			Str("key", key).
			Msg("cache invalidation delete failed")
	}
}
