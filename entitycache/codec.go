package entitycache

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is the serialized form written to the backend for a primary
// lookup: either a record's materialized state, embedded relationship data
// included, or an explicit absence marker. Caching absence under its own
// marker keeps negative lookups distinguishable from a true backend miss.
type Envelope struct {
	// Absent marks a lookup that resolved to no record.
	Absent bool `msgpack:"absent"`

	// Type is the record's registered type identity.
	Type string `msgpack:"type"`

	// Fields is the msgpack encoding of the record struct itself.
	Fields []byte `msgpack:"fields"`

	// Embedded holds the recursively encoded records of embedded
	// relationships, keyed by relationship name.
	Embedded map[string][]*Envelope `msgpack:"embedded,omitempty"`

	// Refs holds the related-id lists of referenced relationships, keyed
	// by relationship name.
	Refs map[string][]string `msgpack:"refs,omitempty"`
}

// indexValue frames a secondary-index id list for the backend.
type indexValue struct {
	IDs []string `msgpack:"ids"`
}

// attrValue frames a denormalized attribute scalar for the backend. Absent
// distinguishes a cached "no row" from a cached nil value.
type attrValue struct {
	Absent bool `msgpack:"absent"`
	Value  any  `msgpack:"value"`
}

// Codec encodes records into envelopes and back. Values read from the
// backend arrive either as *Envelope (in-process store) or as msgpack bytes
// (shared store); Decode accepts both.
type Codec struct {
	registry *Registry
}

// NewCodec creates a codec over the given type registry.
func NewCodec(registry *Registry) *Codec {
	return &Codec{registry: registry}
}

// EncodeAbsent returns the absence marker for the given type.
func (c *Codec) EncodeAbsent(typeName string) *Envelope {
	return &Envelope{Absent: true, Type: typeName}
}

// Encode materializes a populated record into an envelope. Embedded
// relationship slots encode recursively; referenced slots contribute their
// id lists.
func (c *Codec) Encode(rec Record, spec TypeSpec) (*Envelope, error) {
	fields, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s fields: %w", spec.Name, err)
	}

	env := &Envelope{Type: spec.Name, Fields: fields}
	slots := rec.AssociationSlots()

	for _, rel := range spec.Relationships {
		switch rel.Mode {
		case Embedded:
			v, ok := slots.Related(rel.Name)
			if !ok {
				continue
			}
			children, ok := v.([]Record)
			if !ok {
				return nil, fmt.Errorf("encode %s.%s: slot holds %T, want []Record", spec.Name, rel.Name, v)
			}
			childSpec, ok := c.registry.Lookup(rel.Target)
			if !ok {
				return nil, &UnknownTypeError{Type: rel.Target}
			}
			encoded := make([]*Envelope, 0, len(children))
			for _, child := range children {
				childEnv, err := c.Encode(child, childSpec)
				if err != nil {
					return nil, err
				}
				encoded = append(encoded, childEnv)
			}
			if env.Embedded == nil {
				env.Embedded = make(map[string][]*Envelope, len(spec.Relationships))
			}
			env.Embedded[rel.Name] = encoded

		case Referenced:
			ids, ok := slots.RelatedIDs(rel.Name)
			if !ok {
				continue
			}
			if env.Refs == nil {
				env.Refs = make(map[string][]string, len(spec.Relationships))
			}
			env.Refs[rel.Name] = ids
		}
	}

	return env, nil
}

// Decode turns a backend value back into a record. A decoded absence
// marker returns (nil, nil). When the envelope names a type the registry
// does not know, the decode retries once after consulting the registry's
// resolver; if the type stays unresolved the original error surfaces. This
// is a compatibility shim for lazily registered types, not a correctness
// guarantee.
func (c *Codec) Decode(value any) (Record, error) {
	env, err := c.envelope(value)
	if err != nil {
		return nil, err
	}
	if env.Absent {
		return nil, nil
	}

	rec, err := c.decodeEnvelope(env)
	if err == nil {
		return rec, nil
	}

	var unknown *UnknownTypeError
	if !errors.As(err, &unknown) {
		return nil, err
	}
	if _, resolveErr := c.registry.resolveMissing(unknown.Type); resolveErr != nil {
		return nil, err
	}
	metricDecodeFallbacks.Inc()

	rec, retryErr := c.decodeEnvelope(env)
	if retryErr != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Codec) envelope(value any) (*Envelope, error) {
	switch v := value.(type) {
	case *Envelope:
		return v, nil
	case []byte:
		var env Envelope
		if err := msgpack.Unmarshal(v, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		return &env, nil
	default:
		return nil, fmt.Errorf("decode envelope: unexpected cached value type %T", value)
	}
}

func (c *Codec) decodeEnvelope(env *Envelope) (Record, error) {
	spec, ok := c.registry.Lookup(env.Type)
	if !ok {
		return nil, &UnknownTypeError{Type: env.Type}
	}

	rec := spec.New()
	if err := msgpack.Unmarshal(env.Fields, rec); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", env.Type, err)
	}

	slots := rec.AssociationSlots()
	for name, children := range env.Embedded {
		decoded := make([]Record, 0, len(children))
		for _, childEnv := range children {
			if childEnv.Absent {
				continue
			}
			child, err := c.decodeEnvelope(childEnv)
			if err != nil {
				return nil, err
			}
			decoded = append(decoded, child)
		}
		slots.SetRelated(name, decoded)
	}
	for name, ids := range env.Refs {
		slots.SetRelatedIDs(name, ids)
	}

	return rec, nil
}

// present reports whether a backend value holds a record rather than an
// absence marker, without decoding the record body.
func (c *Codec) present(value any) (bool, error) {
	env, err := c.envelope(value)
	if err != nil {
		return false, err
	}
	return !env.Absent, nil
}

// decodeIndexValue reads a secondary-index id list in either of its
// backend forms.
func decodeIndexValue(value any) ([]string, error) {
	switch v := value.(type) {
	case *indexValue:
		return v.IDs, nil
	case []byte:
		var iv indexValue
		if err := msgpack.Unmarshal(v, &iv); err != nil {
			return nil, fmt.Errorf("decode index value: %w", err)
		}
		return iv.IDs, nil
	default:
		return nil, fmt.Errorf("decode index value: unexpected cached value type %T", value)
	}
}

// decodeAttrValue reads a denormalized attribute in either of its backend
// forms.
func decodeAttrValue(value any) (any, bool, error) {
	switch v := value.(type) {
	case *attrValue:
		return v.Value, !v.Absent, nil
	case []byte:
		var av attrValue
		if err := msgpack.Unmarshal(v, &av); err != nil {
			return nil, false, fmt.Errorf("decode attribute value: %w", err)
		}
		return av.Value, !av.Absent, nil
	default:
		return nil, false, fmt.Errorf("decode attribute value: unexpected cached value type %T", value)
	}
}
