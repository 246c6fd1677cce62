package entitycache

import (
	"fmt"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind is the relationship cardinality.
type Kind uint8

const (
	// HasMany relates a parent to zero or more children keyed by a foreign
	// key on the child.
	HasMany Kind = iota + 1
	// HasOne relates a parent to at most one child keyed by a foreign key
	// on the child.
	HasOne
	// BelongsTo relates a child to its parent via a foreign key on the
	// child itself.
	BelongsTo
)

func (k Kind) String() string {
	switch k {
	case HasMany:
		return "has_many"
	case HasOne:
		return "has_one"
	case BelongsTo:
		return "belongs_to"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Mode says whether related data is embedded in the parent's cached blob or
// referenced by id and resolved with a follow-up fetch.
type Mode uint8

const (
	// Embedded stores the related records inline in the parent's envelope.
	Embedded Mode = iota + 1
	// Referenced stores only related ids; resolution is a separate fetch.
	Referenced
)

func (m Mode) String() string {
	switch m {
	case Embedded:
		return "embedded"
	case Referenced:
		return "referenced"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// RelationshipSpec declares one cacheable relationship as a tagged variant
// over Kind x Mode. The supported combinations are embedded has-many,
// embedded has-one, referenced has-many and referenced belongs-to; the
// remaining shapes surface as UsageError at population and prefetch time.
type RelationshipSpec struct {
	// Name is the relationship's accessor name, unique within the type.
	Name string

	Kind Kind
	Mode Mode

	// Target is the related type's registered name.
	Target string

	// ForeignKey names the field that links the two sides: for has-many
	// and has-one it is the child field holding the parent id, for
	// belongs-to it is the parent-side field holding the target id.
	ForeignKey string
}

func (r RelationshipSpec) supported() bool {
	switch r.Mode {
	case Embedded:
		return r.Kind == HasMany || r.Kind == HasOne
	case Referenced:
		return r.Kind == HasMany || r.Kind == BelongsTo
	default:
		return false
	}
}

// AttributeSpec declares a denormalized attribute cache: a single scalar
// (Name) cached under a key derived from the given field group.
type AttributeSpec struct {
	// Name is the attribute (column) being denormalized.
	Name string

	// Fields is the ordered field group forming the lookup key. Order is
	// part of the key identity and must stay stable.
	Fields []string
}

// TypeSpec declares one cacheable record type: identity, construction,
// secondary indexes, denormalized attributes and relationships.
type TypeSpec struct {
	// Name is the stable type identity used in keys and envelopes.
	Name string

	// New constructs an empty record of this type for envelope decoding.
	New func() Record

	// NoPrimaryIndex disables the primary blob cache for this type. Types
	// without a primary index can still serve secondary and attribute
	// lookups, but FetchByID on them is a usage error.
	NoPrimaryIndex bool

	// Indexes lists the secondary-index field groups. Field order within a
	// group is part of the key identity.
	Indexes [][]string

	Attributes    []AttributeSpec
	Relationships []RelationshipSpec
}

// Validate checks the declaration for registration.
func (s TypeSpec) Validate() error {
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required),
	); err != nil {
		return err
	}
	if s.New == nil {
		return fmt.Errorf("entitycache: type %s: New constructor is required", s.Name)
	}

	seen := make(map[string]struct{}, len(s.Relationships))
	for _, rel := range s.Relationships {
		if rel.Name == "" || rel.Target == "" {
			return fmt.Errorf("entitycache: type %s: relationship needs name and target", s.Name)
		}
		if _, dup := seen[rel.Name]; dup {
			return fmt.Errorf("entitycache: type %s: duplicate relationship %s", s.Name, rel.Name)
		}
		seen[rel.Name] = struct{}{}
		switch rel.Kind {
		case HasMany, HasOne, BelongsTo:
		default:
			return fmt.Errorf("entitycache: type %s: relationship %s has invalid kind", s.Name, rel.Name)
		}
		switch rel.Mode {
		case Embedded, Referenced:
		default:
			return fmt.Errorf("entitycache: type %s: relationship %s has invalid mode", s.Name, rel.Name)
		}
		if rel.Mode == Referenced && rel.Kind == BelongsTo && rel.ForeignKey == "" {
			return fmt.Errorf("entitycache: type %s: referenced belongs_to %s needs a foreign key", s.Name, rel.Name)
		}
	}

	for i, group := range s.Indexes {
		if len(group) == 0 {
			return fmt.Errorf("entitycache: type %s: index %d has no fields", s.Name, i)
		}
	}
	for _, attr := range s.Attributes {
		if attr.Name == "" || len(attr.Fields) == 0 {
			return fmt.Errorf("entitycache: type %s: attribute needs a name and key fields", s.Name)
		}
	}
	return nil
}

// Relationship returns the named relationship declaration.
func (s TypeSpec) Relationship(name string) (RelationshipSpec, bool) {
	for _, rel := range s.Relationships {
		if rel.Name == name {
			return rel, true
		}
	}
	return RelationshipSpec{}, false
}

// Attribute returns the named attribute declaration.
func (s TypeSpec) Attribute(name string) (AttributeSpec, bool) {
	for _, attr := range s.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return AttributeSpec{}, false
}

// Registry holds the cacheable type declarations. Registration normally
// happens once at startup; lookups are concurrent.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]TypeSpec
	resolve func(name string) (TypeSpec, error)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeSpec)}
}

// Register validates and adds a type declaration. Registering the same name
// twice is an error.
func (r *Registry) Register(spec TypeSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[spec.Name]; exists {
		return fmt.Errorf("entitycache: type %s already registered", spec.Name)
	}
	r.types[spec.Name] = spec
	return nil
}

// MustRegister is Register for wiring code that treats a bad declaration as
// a programming error.
func (r *Registry) MustRegister(spec TypeSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the declaration registered under name.
func (r *Registry) Lookup(name string) (TypeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.types[name]
	return spec, ok
}

// SetResolver installs the fallback used when decoding meets an envelope
// type the registry does not know, typically because registration is lazy.
// The resolver is consulted at most once per decode.
func (r *Registry) SetResolver(fn func(name string) (TypeSpec, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolve = fn
}

// resolveMissing runs the resolver for an unknown type and registers the
// result on success.
func (r *Registry) resolveMissing(name string) (TypeSpec, error) {
	r.mu.RLock()
	resolve := r.resolve
	r.mu.RUnlock()
	if resolve == nil {
		return TypeSpec{}, &UnknownTypeError{Type: name}
	}

	spec, err := resolve(name)
	if err != nil {
		return TypeSpec{}, err
	}
	if err := r.Register(spec); err != nil {
		// A concurrent decode may have registered the type between the
		// resolve and the register; the registered spec wins.
		if existing, ok := r.Lookup(name); ok {
			return existing, nil
		}
		return TypeSpec{}, err
	}
	return spec, nil
}

// Includes is the relationship-prefetch tree handed to the record store so
// bulk loads can preload related rows. Keys are relationship names; values
// are the nested tree for each relationship's target type.
type Includes map[string]Includes

// IncludesFor builds the prefetch tree covering every embedded relationship
// reachable from the named type. This is the spec the record store must
// apply when loading records that will be materialized into the cache, so
// embedded population does not degrade into per-record queries. The walk
// guards against declaration cycles.
func (r *Registry) IncludesFor(typeName string) Includes {
	return r.includesFor(typeName, map[string]bool{typeName: true})
}

func (r *Registry) includesFor(typeName string, visiting map[string]bool) Includes {
	spec, ok := r.Lookup(typeName)
	if !ok {
		return nil
	}

	var tree Includes
	for _, rel := range spec.Relationships {
		if rel.Mode != Embedded {
			continue
		}
		if tree == nil {
			tree = make(Includes, len(spec.Relationships))
		}
		if visiting[rel.Target] {
			tree[rel.Name] = nil
			continue
		}
		visiting[rel.Target] = true
		tree[rel.Name] = r.includesFor(rel.Target, visiting)
		delete(visiting, rel.Target)
	}
	return tree
}
