package entitycache

import "context"

// RecordStore is the authoritative persistence layer the cache falls back
// to on a miss. Implementations own record instances, relationship loading
// and change tracking; the cache consumes them through this narrow surface.
type RecordStore interface {
	// LoadOne loads a single record by id, applying the relationship
	// prefetch spec. A missing record returns (nil, nil).
	LoadOne(ctx context.Context, typeName, id string, includes Includes) (Record, error)

	// LoadBulk loads the given ids in one round trip. The returned slice
	// is aligned to ids: position i holds the record for ids[i] or nil.
	LoadBulk(ctx context.Context, typeName string, ids []string, includes Includes) ([]Record, error)

	// LoadRelated resolves a relationship through the normal accessor and
	// returns the related records (at most one element for has-one and
	// belongs-to).
	LoadRelated(ctx context.Context, rec Record, rel RelationshipSpec) ([]Record, error)

	// LoadRelatedIDs returns only the related record ids for a referenced
	// relationship, without loading the records themselves.
	LoadRelatedIDs(ctx context.Context, rec Record, rel RelationshipSpec) ([]string, error)

	// LoadIDsByIndex resolves a secondary-index lookup to record ids.
	LoadIDsByIndex(ctx context.Context, typeName string, fields []string, values []any) ([]string, error)

	// LoadAttribute reads one denormalized scalar for the given key
	// values. A missing row returns (nil, nil).
	LoadAttribute(ctx context.Context, typeName string, attr AttributeSpec, values []any) (any, error)
}

// ExistenceChecker is an optional RecordStore fast path for Exists: answer
// existence without loading the record or its relationships. Stores that do
// not implement it fall back to a full fetch.
type ExistenceChecker interface {
	Exists(ctx context.Context, typeName, id string) (bool, error)
}
