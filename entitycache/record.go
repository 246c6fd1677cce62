package entitycache

// Record is the contract a domain object must satisfy to be cacheable. The
// record store owns record instances; this layer only reads identity and
// fields and writes transient association slots during population.
type Record interface {
	// EntityType returns the stable type identity used in cache keys and
	// envelope headers. It must match the TypeSpec the type registers under.
	EntityType() string

	// EntityID returns the record's identity field, or "" for an unsaved
	// record.
	EntityID() string

	// EntityFields returns the record's fields by canonical name. Key
	// derivation for secondary indexes and attributes reads values from
	// this map, and referenced belongs-to relationships read their foreign
	// key here.
	EntityFields() map[string]any

	// AssociationSlots exposes the record's transient relationship slots.
	// Satisfied by embedding Slots.
	AssociationSlots() *Slots
}

// Slots holds a record's transient association state: materialized related
// records for embedded relationships and related-id lists for referenced
// ones. Slots live for the record's in-memory lifetime only and must be
// excluded from the record's own serialization (tag the embedded field with
// `msgpack:"-"`); the envelope codec carries their content separately.
//
// Slots are not synchronized. A record belongs to one unit of work at a
// time, matching the layer's one-context-per-record ownership model.
type Slots struct {
	related map[string]any
	ids     map[string][]string
}

// AssociationSlots lets embedding types satisfy the Record interface.
func (s *Slots) AssociationSlots() *Slots { return s }

// Related returns the materialized records stored under the relationship
// name, if populated.
func (s *Slots) Related(name string) (any, bool) {
	v, ok := s.related[name]
	return v, ok
}

// SetRelated stores materialized records under the relationship name.
func (s *Slots) SetRelated(name string, v any) {
	if s.related == nil {
		s.related = make(map[string]any, 2)
	}
	s.related[name] = v
}

// RelatedIDs returns the related-id list stored under the relationship
// name, if populated. An empty, non-nil list means "populated, no related
// records".
func (s *Slots) RelatedIDs(name string) ([]string, bool) {
	ids, ok := s.ids[name]
	return ids, ok
}

// SetRelatedIDs stores the related-id list under the relationship name.
func (s *Slots) SetRelatedIDs(name string, ids []string) {
	if s.ids == nil {
		s.ids = make(map[string][]string, 2)
	}
	if ids == nil {
		ids = []string{}
	}
	s.ids[name] = ids
}
