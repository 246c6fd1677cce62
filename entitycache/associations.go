package entitycache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Populator materializes a record's declared relationships before the
// record is written to the cache: embedded relationships load now and
// become part of the parent's envelope, referenced relationships store only
// their id lists for later resolution.
type Populator struct {
	registry *Registry
	store    RecordStore
	log      zerolog.Logger
}

// NewPopulator creates a populator over the given registry and store.
func NewPopulator(registry *Registry, store RecordStore, logger zerolog.Logger) *Populator {
	return &Populator{registry: registry, store: store, log: logger}
}

// Populate fills the record's association slots per its type declaration,
// recursing through embedded relationships so the whole embedded subtree is
// materialized in one pass. Slots the record store already filled while
// applying the prefetch includes are kept as-is; LoadRelated is the
// per-record fallback for stores that load relationships lazily.
func (p *Populator) Populate(ctx context.Context, rec Record, spec TypeSpec) error {
	slots := rec.AssociationSlots()

	for _, rel := range spec.Relationships {
		switch {
		case rel.Mode == Embedded && (rel.Kind == HasMany || rel.Kind == HasOne):
			var children []Record
			if v, ok := slots.Related(rel.Name); ok {
				children = v.([]Record)
			} else {
				loaded, err := p.store.LoadRelated(ctx, rec, rel)
				if err != nil {
					return fmt.Errorf("populate %s.%s: %w", spec.Name, rel.Name, err)
				}
				children = loaded
				slots.SetRelated(rel.Name, children)
			}

			childSpec, ok := p.registry.Lookup(rel.Target)
			if !ok {
				return usageError("populate", spec.Name, rel.Name, "target type "+rel.Target+" not registered")
			}
			for _, child := range children {
				if err := p.Populate(ctx, child, childSpec); err != nil {
					return err
				}
			}
			p.log.Debug().
				Str("type", spec.Name).
				Str("relationship", rel.Name).
				Int("count", len(children)).
				Msg("embedded relationship populated")

		case rel.Mode == Referenced && rel.Kind == HasMany:
			ids, err := p.store.LoadRelatedIDs(ctx, rec, rel)
			if err != nil {
				return fmt.Errorf("populate %s.%s: %w", spec.Name, rel.Name, err)
			}
			slots.SetRelatedIDs(rel.Name, ids)

		case rel.Mode == Referenced && rel.Kind == BelongsTo:
			id := idString(rec.EntityFields()[rel.ForeignKey])
			if id == "" {
				slots.SetRelatedIDs(rel.Name, nil)
			} else {
				slots.SetRelatedIDs(rel.Name, []string{id})
			}

		default:
			return usageError("populate", spec.Name, rel.Name,
				fmt.Sprintf("%s %s relationships are not cacheable", rel.Mode, rel.Kind))
		}
	}
	return nil
}

// FetchRelated resolves a record's relationship through the denormalized
// accessor pattern: the association slot answers first, then embedded
// relationships load through the store accessor and referenced ones resolve
// their id list via FetchMulti. The result memoizes into the slot for the
// record's in-memory lifetime. Has-many returns []Record; has-one and
// belongs-to return a single Record or nil.
func (c *Cache) FetchRelated(ctx context.Context, rec Record, name string) (any, error) {
	spec, err := c.lookupSpec("fetch_related", rec.EntityType())
	if err != nil {
		return nil, err
	}
	rel, ok := spec.Relationship(name)
	if !ok {
		return nil, usageError("fetch_related", spec.Name, name, "unknown relationship")
	}

	slots := rec.AssociationSlots()
	if v, ok := slots.Related(name); ok {
		return shapeRelated(rel, v.([]Record)), nil
	}

	var children []Record
	switch rel.Mode {
	case Embedded:
		children, err = c.store.LoadRelated(ctx, rec, rel)
		if err != nil {
			return nil, fmt.Errorf("fetch_related %s.%s: %w", spec.Name, name, err)
		}

	case Referenced:
		ids, ok := slots.RelatedIDs(name)
		if !ok {
			ids, err = c.referencedIDs(ctx, rec, rel)
			if err != nil {
				return nil, err
			}
			slots.SetRelatedIDs(name, ids)
		}
		children, err = c.fetchOrdered(ctx, rel.Target, ids)
		if err != nil {
			return nil, err
		}
	}

	slots.SetRelated(name, children)
	return shapeRelated(rel, children), nil
}

// Prefetch warms the relationship slots of a batch of already-fetched
// records, issuing one batched fetch per relationship hop instead of one
// per parent. The includes tree names the relationships to prefetch at each
// level. Prefetching a non-embedded has-one or an embedded belongs-to is a
// usage error, as is an unknown relationship name.
func (c *Cache) Prefetch(ctx context.Context, typeName string, includes Includes, records []Record) error {
	spec, err := c.lookupSpec("prefetch", typeName)
	if err != nil {
		return err
	}

	for name, sub := range includes {
		rel, ok := spec.Relationship(name)
		if !ok {
			return usageError("prefetch", typeName, name, "unknown relationship")
		}

		switch {
		case rel.Mode == Embedded && (rel.Kind == HasMany || rel.Kind == HasOne):
			children, err := c.prefetchEmbedded(ctx, rel, records)
			if err != nil {
				return err
			}
			if len(sub) > 0 && len(children) > 0 {
				if err := c.Prefetch(ctx, rel.Target, sub, children); err != nil {
					return err
				}
			}

		case rel.Mode == Referenced && (rel.Kind == HasMany || rel.Kind == BelongsTo):
			children, err := c.prefetchReferenced(ctx, rel, records)
			if err != nil {
				return err
			}
			if len(sub) > 0 && len(children) > 0 {
				if err := c.Prefetch(ctx, rel.Target, sub, children); err != nil {
					return err
				}
			}

		case rel.Mode == Referenced && rel.Kind == HasOne:
			return usageError("prefetch", typeName, name, "prefetching a non-embedded has_one is not supported")

		default:
			return usageError("prefetch", typeName, name, "prefetching an embedded belongs_to is not supported")
		}
	}
	return nil
}

// prefetchEmbedded gathers the already-materialized children of an embedded
// relationship, loading the slot for any parent that arrived unpopulated.
func (c *Cache) prefetchEmbedded(ctx context.Context, rel RelationshipSpec, records []Record) ([]Record, error) {
	var all []Record
	for _, rec := range records {
		slots := rec.AssociationSlots()
		v, ok := slots.Related(rel.Name)
		if !ok {
			children, err := c.store.LoadRelated(ctx, rec, rel)
			if err != nil {
				return nil, fmt.Errorf("prefetch %s: %w", rel.Name, err)
			}
			slots.SetRelated(rel.Name, children)
			all = append(all, children...)
			continue
		}
		all = append(all, v.([]Record)...)
	}
	return all, nil
}

// prefetchReferenced groups every parent's related ids into one FetchMulti
// call, then distributes the fetched records back into each parent's slot.
func (c *Cache) prefetchReferenced(ctx context.Context, rel RelationshipSpec, records []Record) ([]Record, error) {
	perParent := make([][]string, len(records))
	var all []string
	for i, rec := range records {
		ids, ok := rec.AssociationSlots().RelatedIDs(rel.Name)
		if !ok {
			var err error
			ids, err = c.referencedIDs(ctx, rec, rel)
			if err != nil {
				return nil, err
			}
			rec.AssociationSlots().SetRelatedIDs(rel.Name, ids)
		}
		perParent[i] = ids
		all = append(all, ids...)
	}

	byID, err := c.FetchMulti(ctx, rel.Target, all)
	if err != nil {
		return nil, err
	}

	var children []Record
	seen := make(map[string]bool, len(byID))
	for i, rec := range records {
		assigned := make([]Record, 0, len(perParent[i]))
		for _, id := range perParent[i] {
			child, ok := byID[id]
			if !ok {
				continue
			}
			assigned = append(assigned, child)
			if !seen[id] {
				seen[id] = true
				children = append(children, child)
			}
		}
		rec.AssociationSlots().SetRelated(rel.Name, assigned)
	}
	return children, nil
}

// referencedIDs resolves a referenced relationship's id list from the
// record itself (belongs-to foreign key) or the store (has-many).
func (c *Cache) referencedIDs(ctx context.Context, rec Record, rel RelationshipSpec) ([]string, error) {
	if rel.Kind == BelongsTo {
		id := idString(rec.EntityFields()[rel.ForeignKey])
		if id == "" {
			return nil, nil
		}
		return []string{id}, nil
	}

	ids, err := c.store.LoadRelatedIDs(ctx, rec, rel)
	if err != nil {
		return nil, fmt.Errorf("load related ids %s.%s: %w", rec.EntityType(), rel.Name, err)
	}
	return ids, nil
}

// fetchOrdered is FetchMulti with the result flattened back into the input
// id order, absent ids dropped.
func (c *Cache) fetchOrdered(ctx context.Context, typeName string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID, err := c.FetchMulti(ctx, typeName, ids)
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

func shapeRelated(rel RelationshipSpec, children []Record) any {
	if rel.Kind == HasMany {
		return children
	}
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// idString renders a foreign-key field value as a record id.
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return fmt.Sprintf("%v", t)
	}
}
