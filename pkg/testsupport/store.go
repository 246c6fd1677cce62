package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-entity-cache/entitycache"
)

// FixtureStore is a scripted entitycache.RecordStore over the fixture
// graph. It hands out fresh record copies on every load (the store owns
// record instances; callers never share slot state through it) and counts
// every call so tests can assert N+1 avoidance.
type FixtureStore struct {
	mu sync.Mutex

	blogs    map[string]*Blog
	comments map[string]*Comment
	authors  map[string]*Author

	LoadOneCalls        int
	LoadBulkCalls       int
	LoadRelatedCalls    int
	LoadRelatedIDsCalls int
	LoadIDsByIndexCalls int
	LoadAttributeCalls  int

	// LoadErr, when set, fails every load.
	LoadErr error

	// MisalignedIDs remaps requested ids to different rows, simulating a
	// stale index for integrity-check tests.
	MisalignedIDs map[string]string
}

var _ entitycache.RecordStore = (*FixtureStore)(nil)

// NewFixtureStore returns an empty store.
func NewFixtureStore() *FixtureStore {
	return &FixtureStore{
		blogs:    make(map[string]*Blog),
		comments: make(map[string]*Comment),
		authors:  make(map[string]*Author),
	}
}

// AddBlog, AddComment and AddAuthor seed the fixture graph.
func (s *FixtureStore) AddBlog(b *Blog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blogs[b.ID] = b
}

func (s *FixtureStore) AddComment(c *Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = c
}

func (s *FixtureStore) AddAuthor(a *Author) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[a.ID] = a
}

// RemoveBlog deletes a blog row, for invalidation tests that destroy
// records.
func (s *FixtureStore) RemoveBlog(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blogs, id)
}

func (s *FixtureStore) LoadOne(_ context.Context, typeName, id string, includes entitycache.Includes) (entitycache.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadOneCalls++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	rec, err := s.lookup(typeName, s.remap(id))
	if err != nil || rec == nil {
		return nil, err
	}
	if err := s.applyIncludes(typeName, includes, []entitycache.Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FixtureStore) LoadBulk(_ context.Context, typeName string, ids []string, includes entitycache.Includes) ([]entitycache.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadBulkCalls++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	records := make([]entitycache.Record, len(ids))
	for i, id := range ids {
		rec, err := s.lookup(typeName, s.remap(id))
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	if err := s.applyIncludes(typeName, includes, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FixtureStore) LoadRelated(_ context.Context, rec entitycache.Record, rel entitycache.RelationshipSpec) ([]entitycache.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadRelatedCalls++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	if rel.Kind == entitycache.BelongsTo {
		id := asString(rec.EntityFields()[rel.ForeignKey])
		if id == "" {
			return nil, nil
		}
		target, err := s.lookup(rel.Target, id)
		if err != nil || target == nil {
			return nil, err
		}
		return []entitycache.Record{target}, nil
	}

	related := s.childrenOf(rel.Target, rel.ForeignKey, rec.EntityID())
	if rel.Kind == entitycache.HasOne && len(related) > 1 {
		related = related[:1]
	}
	return related, nil
}

func (s *FixtureStore) LoadRelatedIDs(_ context.Context, rec entitycache.Record, rel entitycache.RelationshipSpec) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadRelatedIDsCalls++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	children := s.childrenOf(rel.Target, rel.ForeignKey, rec.EntityID())
	ids := make([]string, len(children))
	for i, child := range children {
		ids[i] = child.EntityID()
	}
	return ids, nil
}

func (s *FixtureStore) LoadIDsByIndex(_ context.Context, typeName string, fields []string, values []any) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadIDsByIndexCalls++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	var ids []string
	for _, rec := range s.allOf(typeName) {
		if fieldsMatch(rec, fields, values) {
			ids = append(ids, rec.EntityID())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FixtureStore) LoadAttribute(_ context.Context, typeName string, attr entitycache.AttributeSpec, values []any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadAttributeCalls++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	for _, rec := range s.allOf(typeName) {
		if fieldsMatch(rec, attr.Fields, values) {
			return rec.EntityFields()[attr.Name], nil
		}
	}
	return nil, nil
}

// fixtureRelation names the child type and foreign key behind an include
// entry, mirroring what the fixture registry declares for the same
// relationship.
type fixtureRelation struct {
	target     string
	foreignKey string
}

var fixtureRelations = map[string]map[string]fixtureRelation{
	"blog": {
		"comments": {target: "comment", foreignKey: "blog_id"},
	},
}

// applyIncludes preloads the requested embedded relationships into the
// loaded records' association slots, the way a real store resolves the
// prefetch tree inside the same load. Callers hold s.mu.
func (s *FixtureStore) applyIncludes(typeName string, includes entitycache.Includes, records []entitycache.Record) error {
	if len(includes) == 0 {
		return nil
	}
	for name, sub := range includes {
		rel, ok := fixtureRelations[typeName][name]
		if !ok {
			return fmt.Errorf("testsupport: unknown include %s.%s", typeName, name)
		}
		for _, rec := range records {
			if rec == nil {
				continue
			}
			children := s.childrenOf(rel.target, rel.foreignKey, rec.EntityID())
			rec.AssociationSlots().SetRelated(name, children)
			if err := s.applyIncludes(rel.target, sub, children); err != nil {
				return err
			}
		}
	}
	return nil
}

// lookup returns a fresh copy of the stored record, or (nil, nil) when the
// row does not exist. Callers hold s.mu.
func (s *FixtureStore) lookup(typeName, id string) (entitycache.Record, error) {
	switch typeName {
	case "blog":
		if b, ok := s.blogs[id]; ok {
			clone := *b
			clone.Slots = entitycache.Slots{}
			return &clone, nil
		}
	case "comment":
		if c, ok := s.comments[id]; ok {
			clone := *c
			clone.Slots = entitycache.Slots{}
			return &clone, nil
		}
	case "author":
		if a, ok := s.authors[id]; ok {
			clone := *a
			clone.Slots = entitycache.Slots{}
			return &clone, nil
		}
	default:
		return nil, fmt.Errorf("testsupport: unknown fixture type %q", typeName)
	}
	return nil, nil
}

// childrenOf returns fresh copies of the target-type records whose foreign
// key field matches parentID, ordered by id. Callers hold s.mu.
func (s *FixtureStore) childrenOf(target, foreignKey, parentID string) []entitycache.Record {
	var children []entitycache.Record
	for _, rec := range s.allOf(target) {
		if asString(rec.EntityFields()[foreignKey]) == parentID {
			children = append(children, rec)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].EntityID() < children[j].EntityID()
	})
	return children
}

func (s *FixtureStore) allOf(typeName string) []entitycache.Record {
	var all []entitycache.Record
	switch typeName {
	case "blog":
		for id := range s.blogs {
			rec, _ := s.lookup("blog", id)
			all = append(all, rec)
		}
	case "comment":
		for id := range s.comments {
			rec, _ := s.lookup("comment", id)
			all = append(all, rec)
		}
	case "author":
		for id := range s.authors {
			rec, _ := s.lookup("author", id)
			all = append(all, rec)
		}
	}
	return all
}

func (s *FixtureStore) remap(id string) string {
	if mapped, ok := s.MisalignedIDs[id]; ok {
		return mapped
	}
	return id
}

func fieldsMatch(rec entitycache.Record, fields []string, values []any) bool {
	if len(fields) != len(values) {
		return false
	}
	recFields := rec.EntityFields()
	for i, f := range fields {
		if asString(recFields[f]) != asString(values[i]) {
			return false
		}
	}
	return true
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
