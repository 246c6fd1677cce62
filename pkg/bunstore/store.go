package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-cache/entitycache"
)

// Store is a bun-backed entitycache.RecordStore. Entity types are attached
// with Bind, which captures the concrete row type so queries scan into real
// model slices rather than reflection-built ones. Relationship prefetch
// trees resolve through the registry: each include level loads all children
// of the batch in one query and distributes them into the parents'
// association slots.
//
// All loaders resolve rows by the "id" column and order child rows by id so
// repeated loads return records in a stable order.
type Store struct {
	db       bun.IDB
	registry *entitycache.Registry

	mu       sync.RWMutex
	bindings map[string]*binding
}

var (
	_ entitycache.RecordStore      = (*Store)(nil)
	_ entitycache.ExistenceChecker = (*Store)(nil)
)

// binding holds the type-erased loaders Bind builds for one entity type.
type binding struct {
	loadByIDs      func(ctx context.Context, db bun.IDB, ids []string) ([]entitycache.Record, error)
	loadChildren   func(ctx context.Context, db bun.IDB, foreignKey, parentID string) ([]entitycache.Record, error)
	loadChildrenIn func(ctx context.Context, db bun.IDB, foreignKey string, parentIDs []string) ([]entitycache.Record, error)
	idQuery        func(db bun.IDB) *bun.SelectQuery
	model          func() any
}

// New creates a store over the given bun database handle. Both *bun.DB and
// bun.Tx satisfy bun.IDB, so a store can be scoped to a transaction. The
// registry supplies the relationship declarations behind prefetch include
// names.
func New(db bun.IDB, registry *entitycache.Registry) *Store {
	return &Store{
		db:       db,
		registry: registry,
		bindings: make(map[string]*binding),
	}
}

// Bind attaches an entity type to the store under typeName. T is the row
// struct and *T must implement entitycache.Record. Types must be bound
// before any load names them.
func Bind[T any, PT interface {
	entitycache.Record
	*T
}](s *Store, typeName string) {
	b := &binding{
		loadByIDs: func(ctx context.Context, db bun.IDB, ids []string) ([]entitycache.Record, error) {
			var rows []T
			err := db.NewSelect().
				Model(&rows).
				Where("id IN (?)", bun.In(ids)).
				Scan(ctx)
			if err != nil {
				return nil, err
			}
			records := make([]entitycache.Record, len(rows))
			for i := range rows {
				records[i] = PT(&rows[i])
			}
			return records, nil
		},
		loadChildren: func(ctx context.Context, db bun.IDB, foreignKey, parentID string) ([]entitycache.Record, error) {
			var rows []T
			err := db.NewSelect().
				Model(&rows).
				Where("? = ?", bun.Ident(foreignKey), parentID).
				Order("id ASC").
				Scan(ctx)
			if err != nil {
				return nil, err
			}
			records := make([]entitycache.Record, len(rows))
			for i := range rows {
				records[i] = PT(&rows[i])
			}
			return records, nil
		},
		loadChildrenIn: func(ctx context.Context, db bun.IDB, foreignKey string, parentIDs []string) ([]entitycache.Record, error) {
			var rows []T
			err := db.NewSelect().
				Model(&rows).
				Where("? IN (?)", bun.Ident(foreignKey), bun.In(parentIDs)).
				Order("id ASC").
				Scan(ctx)
			if err != nil {
				return nil, err
			}
			records := make([]entitycache.Record, len(rows))
			for i := range rows {
				records[i] = PT(&rows[i])
			}
			return records, nil
		},
		idQuery: func(db bun.IDB) *bun.SelectQuery {
			return db.NewSelect().Model((*T)(nil)).Column("id")
		},
		model: func() any { return (*T)(nil) },
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[typeName] = b
}

func (s *Store) LoadOne(ctx context.Context, typeName, id string, includes entitycache.Includes) (entitycache.Record, error) {
	records, err := s.loadByIDs(ctx, typeName, []string{id})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	if err := s.applyIncludes(ctx, typeName, includes, records[:1]); err != nil {
		return nil, err
	}
	return records[0], nil
}

func (s *Store) LoadBulk(ctx context.Context, typeName string, ids []string, includes entitycache.Includes) ([]entitycache.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	loaded, err := s.loadByIDs(ctx, typeName, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]entitycache.Record, len(loaded))
	for _, rec := range loaded {
		byID[rec.EntityID()] = rec
	}

	// Align with the requested id order, leaving nil holes for missing rows.
	records := make([]entitycache.Record, len(ids))
	for i, id := range ids {
		records[i] = byID[id]
	}
	if err := s.applyIncludes(ctx, typeName, includes, records); err != nil {
		return nil, err
	}
	return records, nil
}

// applyIncludes resolves one level of the prefetch tree with a single
// children query over the whole parent batch, fills each parent's
// association slot, then recurses into the loaded children for the nested
// levels.
func (s *Store) applyIncludes(ctx context.Context, typeName string, includes entitycache.Includes, records []entitycache.Record) error {
	if len(includes) == 0 {
		return nil
	}
	if s.registry == nil {
		return fmt.Errorf("bunstore: includes requested for %q but store has no registry", typeName)
	}
	spec, ok := s.registry.Lookup(typeName)
	if !ok {
		return fmt.Errorf("bunstore: type %q not registered", typeName)
	}

	parents := make([]entitycache.Record, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			parents = append(parents, rec)
		}
	}
	if len(parents) == 0 {
		return nil
	}
	parentIDs := make([]string, len(parents))
	for i, rec := range parents {
		parentIDs[i] = rec.EntityID()
	}

	for name, sub := range includes {
		rel, ok := spec.Relationship(name)
		if !ok {
			return fmt.Errorf("bunstore: %s has no relationship %q", typeName, name)
		}
		b, err := s.binding(rel.Target)
		if err != nil {
			return err
		}

		children, err := b.loadChildrenIn(ctx, s.db, rel.ForeignKey, parentIDs)
		if err != nil {
			return err
		}

		byParent := make(map[string][]entitycache.Record, len(parents))
		for _, child := range children {
			pid := stringValue(child.EntityFields()[rel.ForeignKey])
			byParent[pid] = append(byParent[pid], child)
		}
		for _, rec := range parents {
			kids := byParent[rec.EntityID()]
			if rel.Kind == entitycache.HasOne && len(kids) > 1 {
				kids = kids[:1]
			}
			rec.AssociationSlots().SetRelated(rel.Name, kids)
		}

		if err := s.applyIncludes(ctx, rel.Target, sub, children); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) LoadRelated(ctx context.Context, rec entitycache.Record, rel entitycache.RelationshipSpec) ([]entitycache.Record, error) {
	if rel.Kind == entitycache.BelongsTo {
		id := stringValue(rec.EntityFields()[rel.ForeignKey])
		if id == "" {
			return nil, nil
		}
		target, err := s.LoadOne(ctx, rel.Target, id, nil)
		if err != nil || target == nil {
			return nil, err
		}
		return []entitycache.Record{target}, nil
	}

	b, err := s.binding(rel.Target)
	if err != nil {
		return nil, err
	}
	children, err := b.loadChildren(ctx, s.db, rel.ForeignKey, rec.EntityID())
	if err != nil {
		return nil, err
	}
	if rel.Kind == entitycache.HasOne && len(children) > 1 {
		children = children[:1]
	}
	return children, nil
}

func (s *Store) LoadRelatedIDs(ctx context.Context, rec entitycache.Record, rel entitycache.RelationshipSpec) ([]string, error) {
	b, err := s.binding(rel.Target)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = b.idQuery(s.db).
		Where("? = ?", bun.Ident(rel.ForeignKey), rec.EntityID()).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) LoadIDsByIndex(ctx context.Context, typeName string, fields []string, values []any) ([]string, error) {
	b, err := s.binding(typeName)
	if err != nil {
		return nil, err
	}

	q := b.idQuery(s.db)
	for i, field := range fields {
		q = q.Where("? = ?", bun.Ident(field), values[i])
	}

	var ids []string
	if err := q.Order("id ASC").Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) LoadAttribute(ctx context.Context, typeName string, attr entitycache.AttributeSpec, values []any) (any, error) {
	b, err := s.binding(typeName)
	if err != nil {
		return nil, err
	}

	q := s.db.NewSelect().
		Model(b.model()).
		Column(attr.Name)
	for i, field := range attr.Fields {
		q = q.Where("? = ?", bun.Ident(field), values[i])
	}

	var out any
	err = q.Limit(1).Scan(ctx, &out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exists reports row presence with an EXISTS query, avoiding a full row
// load when the cache only needs presence.
func (s *Store) Exists(ctx context.Context, typeName, id string) (bool, error) {
	b, err := s.binding(typeName)
	if err != nil {
		return false, err
	}
	return b.idQuery(s.db).Where("id = ?", id).Exists(ctx)
}

func (s *Store) loadByIDs(ctx context.Context, typeName string, ids []string) ([]entitycache.Record, error) {
	b, err := s.binding(typeName)
	if err != nil {
		return nil, err
	}
	return b.loadByIDs(ctx, s.db, ids)
}

func (s *Store) binding(typeName string) (*binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[typeName]
	if !ok {
		return nil, fmt.Errorf("bunstore: no binding for type %q", typeName)
	}
	return b, nil
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
