package entitycache

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-entity-cache/cache"
)

// Cache is the read-through/write-through caching layer over a record
// store. Reads resolve through the memoization overlay, then the backend,
// then the store; resolved records are materialized (embedded relationships
// included) and written back so the next reader is served from cache.
//
// A Cache is safe for use from many concurrent units of work. Deduplication
// of reads only happens within one memoization scope; concurrent in-flight
// backend calls for the same key across different scopes are not coalesced.
type Cache struct {
	overlay   *cache.Memoizer
	codec     *Codec
	keys      *cache.KeyCodec
	registry  *Registry
	store     RecordStore
	populator *Populator
	log       zerolog.Logger
}

// New assembles a Cache over the given backend and record store. The
// backend is wrapped in a memoization overlay unless it already is one.
func New(backend cache.Backend, store RecordStore, registry *Registry, keys *cache.KeyCodec, logger zerolog.Logger) *Cache {
	overlay, ok := backend.(*cache.Memoizer)
	if !ok {
		overlay = cache.NewMemoizer(backend)
	}
	return &Cache{
		overlay:   overlay,
		codec:     NewCodec(registry),
		keys:      keys,
		registry:  registry,
		store:     store,
		populator: NewPopulator(registry, store, logger),
		log:       logger,
	}
}

// Registry returns the type registry this cache serves.
func (c *Cache) Registry() *Registry { return c.registry }

// Memoize runs fn inside a memoization scope: repeated reads of the same
// key within fn hit the backend at most once. The scope is discarded on
// every exit path.
func (c *Cache) Memoize(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.overlay.Memoize(ctx, fn)
}

// FetchByID returns the record with the given id, or nil when it does not
// exist. Absence is cached too, so repeated lookups of a missing id do not
// hammer the record store.
func (c *Cache) FetchByID(ctx context.Context, typeName, id string) (Record, error) {
	spec, err := c.primarySpec("fetch_by_id", typeName)
	if err != nil {
		return nil, err
	}

	key := c.keys.PrimaryKey(spec.Name, id)
	value, found, err := c.overlay.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		metricHits.WithLabelValues("fetch").Inc()
		return c.codec.Decode(value)
	}

	metricMisses.WithLabelValues("fetch").Inc()
	return c.resolveMiss(ctx, spec, key, id)
}

// Fetch is FetchByID with absence reported as ErrNotFound.
func (c *Cache) Fetch(ctx context.Context, typeName, id string) (Record, error) {
	rec, err := c.FetchByID(ctx, typeName, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, typeName, id)
	}
	return rec, nil
}

// FetchMulti resolves many ids in one backend multi-read plus at most one
// bulk load for the misses. The result maps id to record and contains only
// ids that resolved to a present record; callers re-derive ordering from
// their own id list. Duplicate ids collapse, unknown ids drop out.
func (c *Cache) FetchMulti(ctx context.Context, typeName string, ids []string) (map[string]Record, error) {
	spec, err := c.primarySpec("fetch_multi", typeName)
	if err != nil {
		return nil, err
	}

	unique := make([]string, 0, len(ids))
	keyByID := make(map[string]string, len(ids))
	keyList := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, seen := keyByID[id]; seen {
			continue
		}
		key := c.keys.PrimaryKey(spec.Name, id)
		keyByID[id] = key
		keyList = append(keyList, key)
		unique = append(unique, id)
	}

	cached, err := c.overlay.ReadMulti(ctx, keyList)
	if err != nil {
		return nil, err
	}

	result := make(map[string]Record, len(unique))
	var missing []string
	for _, id := range unique {
		value, ok := cached[keyByID[id]]
		if !ok {
			missing = append(missing, id)
			continue
		}
		metricHits.WithLabelValues("fetch_multi").Inc()
		rec, err := c.codec.Decode(value)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			result[id] = rec
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	loaded, err := c.store.LoadBulk(ctx, spec.Name, missing, c.registry.IncludesFor(spec.Name))
	if err != nil {
		return nil, err
	}
	if len(loaded) != len(missing) {
		c.log.Warn().
			Str("type", spec.Name).
			Int("requested", len(missing)).
			Int("loaded", len(loaded)).
			Msg("bulk load result not aligned to requested ids")
		metricIntegrityWarnings.Inc()
	}

	for i, id := range missing {
		metricMisses.WithLabelValues("fetch_multi").Inc()

		var rec Record
		if i < len(loaded) {
			rec = loaded[i]
		}
		if rec == nil {
			if err := c.overlay.Write(ctx, keyByID[id], c.codec.EncodeAbsent(spec.Name)); err != nil {
				return nil, err
			}
			continue
		}

		c.checkIdentity(spec.Name, id, rec)
		if err := c.materialize(ctx, spec, keyByID[id], rec); err != nil {
			return nil, err
		}
		result[id] = rec
	}

	return result, nil
}

// Exists reports whether a record with the given id exists, answering from
// the cached envelope header when possible without decoding the record
// body. A total miss uses the store's existence fast path when available,
// otherwise it degrades to a full fetch (which also warms the cache).
func (c *Cache) Exists(ctx context.Context, typeName, id string) (bool, error) {
	spec, err := c.primarySpec("exists", typeName)
	if err != nil {
		return false, err
	}

	key := c.keys.PrimaryKey(spec.Name, id)
	value, found, err := c.overlay.Read(ctx, key)
	if err != nil {
		return false, err
	}
	if found {
		metricHits.WithLabelValues("exists").Inc()
		return c.codec.present(value)
	}

	metricMisses.WithLabelValues("exists").Inc()
	if checker, ok := c.store.(ExistenceChecker); ok {
		return checker.Exists(ctx, spec.Name, id)
	}

	rec, err := c.resolveMiss(ctx, spec, key, id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// FetchByIndex resolves a secondary-index lookup to records. The id list is
// cached under the secondary key; the records themselves resolve through
// FetchMulti. Results preserve the index's id order and drop absent ids.
func (c *Cache) FetchByIndex(ctx context.Context, typeName string, fields []string, values []any) ([]Record, error) {
	spec, err := c.lookupSpec("fetch_by_index", typeName)
	if err != nil {
		return nil, err
	}
	if !hasIndex(spec, fields) {
		return nil, usageError("fetch_by_index", typeName, fieldList(fields), "no secondary index declared for field group")
	}

	key := c.keys.SecondaryKey(spec.Name, fields, values)
	value, found, err := c.overlay.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	var ids []string
	if found {
		metricHits.WithLabelValues("fetch_by_index").Inc()
		ids, err = decodeIndexValue(value)
		if err != nil {
			return nil, err
		}
	} else {
		metricMisses.WithLabelValues("fetch_by_index").Inc()
		ids, err = c.store.LoadIDsByIndex(ctx, spec.Name, fields, values)
		if err != nil {
			return nil, err
		}
		if err := c.overlay.Write(ctx, key, &indexValue{IDs: ids}); err != nil {
			return nil, err
		}
	}

	if len(ids) == 0 {
		return nil, nil
	}

	byID, err := c.FetchMulti(ctx, spec.Name, ids)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// FetchAttribute returns one denormalized scalar for the declared attribute
// and key values, caching it under the attribute key. A lookup that
// resolves to no row returns (nil, nil) and caches the absence.
func (c *Cache) FetchAttribute(ctx context.Context, typeName, attribute string, values []any) (any, error) {
	spec, err := c.lookupSpec("fetch_attribute", typeName)
	if err != nil {
		return nil, err
	}
	attr, ok := spec.Attribute(attribute)
	if !ok {
		return nil, usageError("fetch_attribute", typeName, attribute, "attribute not declared")
	}

	key := c.keys.AttributeKey(spec.Name, attr.Name, attr.Fields, values)
	value, found, err := c.overlay.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		metricHits.WithLabelValues("fetch_attribute").Inc()
		v, _, err := decodeAttrValue(value)
		return v, err
	}

	metricMisses.WithLabelValues("fetch_attribute").Inc()
	loaded, err := c.store.LoadAttribute(ctx, spec.Name, attr, values)
	if err != nil {
		return nil, err
	}
	if err := c.overlay.Write(ctx, key, &attrValue{Absent: loaded == nil, Value: loaded}); err != nil {
		return nil, err
	}
	return loaded, nil
}

// DeleteByID expires a single record's primary cache entry, for out-of-band
// corrections. Regular invalidation runs through OnCommit and OnTouch.
func (c *Cache) DeleteByID(ctx context.Context, typeName, id string) error {
	spec, err := c.primarySpec("delete_by_id", typeName)
	if err != nil {
		return err
	}
	return c.overlay.Delete(ctx, c.keys.PrimaryKey(spec.Name, id))
}

// Clear drops the current scope's overlay table and empties the backend.
// Test and reset paths only.
func (c *Cache) Clear(ctx context.Context) error {
	return c.overlay.Clear(ctx)
}

// resolveMiss loads one record from the store, materializes it and writes
// it (or the absence marker) back through the overlay.
func (c *Cache) resolveMiss(ctx context.Context, spec TypeSpec, key, id string) (Record, error) {
	rec, err := c.store.LoadOne(ctx, spec.Name, id, c.registry.IncludesFor(spec.Name))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if err := c.overlay.Write(ctx, key, c.codec.EncodeAbsent(spec.Name)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	c.checkIdentity(spec.Name, id, rec)
	if err := c.materialize(ctx, spec, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// materialize populates a freshly loaded record's relationship slots,
// encodes it and writes the envelope through the overlay.
func (c *Cache) materialize(ctx context.Context, spec TypeSpec, key string, rec Record) error {
	if err := c.populator.Populate(ctx, rec, spec); err != nil {
		return err
	}
	env, err := c.codec.Encode(rec, spec)
	if err != nil {
		return err
	}
	return c.overlay.Write(ctx, key, env)
}

// checkIdentity verifies the loaded record's id matches the requested id.
// A mismatch indicates a stale index pointing at the wrong row; it is
// logged and counted but the operation keeps its best-effort result.
func (c *Cache) checkIdentity(typeName, requested string, rec Record) {
	if rec.EntityID() == requested {
		return
	}
	metricIntegrityWarnings.Inc()
	c.log.Warn().
		Str("type", typeName).
		Str("requested_id", requested).
		Str("loaded_id", rec.EntityID()).
		Msg("loaded record id does not match requested id")
}

func (c *Cache) lookupSpec(op, typeName string) (TypeSpec, error) {
	spec, ok := c.registry.Lookup(typeName)
	if !ok {
		return TypeSpec{}, usageError(op, typeName, "", "type not registered")
	}
	return spec, nil
}

func (c *Cache) primarySpec(op, typeName string) (TypeSpec, error) {
	spec, err := c.lookupSpec(op, typeName)
	if err != nil {
		return TypeSpec{}, err
	}
	if spec.NoPrimaryIndex {
		return TypeSpec{}, usageError(op, typeName, "", "type declares no primary index")
	}
	return spec, nil
}

func hasIndex(spec TypeSpec, fields []string) bool {
	for _, group := range spec.Indexes {
		if len(group) != len(fields) {
			continue
		}
		match := true
		for i := range group {
			if group[i] != fields[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func fieldList(fields []string) string {
	return strings.Join(fields, ",")
}
