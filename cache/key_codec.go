package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// DefaultMaxKeyLen is the longest key the codec will emit verbatim. It
// matches the memcached protocol limit so keys survive any backend. Keys
// that would exceed it keep their namespace/type/kind prefix and replace
// the payload with an xxhash64 digest.
const DefaultMaxKeyLen = 250

// Key kind tags. The tag is part of the key's identity so that primary,
// secondary and attribute lookups for the same type never collide.
const (
	kindPrimary   = "blob"
	kindSecondary = "index"
	kindAttribute = "attr"
)

// KeyCodec derives deterministic cache keys for primary, secondary and
// attribute lookups. It is a pure function of its inputs: the same logical
// lookup always yields the same key string across process restarts.
//
// Field order is part of a key's semantic identity. Changing the declared
// order of an index's fields changes its keys and orphans existing entries;
// callers must keep declarations stable.
type KeyCodec struct {
	namespace string
	maxKeyLen int
}

// NewKeyCodec creates a codec that prefixes every key with the given
// namespace. The namespace is normalized to snake_case.
func NewKeyCodec(namespace string) *KeyCodec {
	return &KeyCodec{
		namespace: toSnake(namespace),
		maxKeyLen: DefaultMaxKeyLen,
	}
}

// PrimaryKey returns the key for a record's full cached blob.
func (c *KeyCodec) PrimaryKey(typeName, id string) string {
	return c.join(typeName, kindPrimary, escapeSegment(id))
}

// SecondaryKey returns the key for a secondary (alternate-key) index over
// the given field group and value tuple.
//
// Values render by their textual form, untyped: nil and the literal string
// "nil" share a key, as do 5 and "5". Index fields whose domain can produce
// those renderings as real string values need a field type that rules the
// ambiguity out (or must accept the collision).
func (c *KeyCodec) SecondaryKey(typeName string, fields []string, values []any) string {
	return c.join(typeName, kindSecondary, fieldSegment(fields), valueSegment(values))
}

// AttributeKey returns the key for a denormalized attribute value keyed by
// the given field group and value tuple.
func (c *KeyCodec) AttributeKey(typeName, attribute string, fields []string, values []any) string {
	return c.join(typeName, kindAttribute, escapeSegment(attribute), fieldSegment(fields), valueSegment(values))
}

func (c *KeyCodec) join(typeName, kind string, payload ...string) string {
	parts := make([]string, 0, 3+len(payload))
	parts = append(parts, c.namespace, toSnake(typeName), kind)
	parts = append(parts, payload...)
	key := strings.Join(parts, KeySeparator)
	if len(key) <= c.maxKeyLen {
		return key
	}

	// Keep the routable prefix readable, digest the rest.
	prefix := strings.Join([]string{c.namespace, toSnake(typeName), kind}, KeySeparator)
	digest := strconv.FormatUint(xxhash.Sum64String(key), 16)
	return prefix + KeySeparator + "#" + digest
}

func fieldSegment(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escapeSegment(f)
	}
	return strings.Join(escaped, "/")
}

func valueSegment(values []any) string {
	rendered := make([]string, len(values))
	for i, v := range values {
		rendered[i] = escapeSegment(renderValue(v))
	}
	return strings.Join(rendered, "/")
}

// renderValue produces the canonical textual encoding of a key payload
// value. Rendering is deterministic across runs: nil markers, recursive
// slices, plain formatting for scalar kinds and a JSON fallback for
// anything structured.
func renderValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return renderValue(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = renderValue(rv.Index(i).Interface())
		}
		return fmt.Sprintf("slice[%d]:{%s}", rv.Len(), strings.Join(parts, ","))

	case reflect.Array:
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = renderValue(rv.Index(i).Interface())
		}
		return fmt.Sprintf("array[%d]:{%s}", rv.Len(), strings.Join(parts, ","))

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	// Structured payloads fall back to JSON for a stable rendering.
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + rt.String()
	}
	return "json:" + string(data)
}

// escapeSegment makes a rendered value safe to embed between separators so
// that distinct tuples can never collide into the same key string.
func escapeSegment(s string) string {
	if !strings.ContainsAny(s, "%/:") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%':
			b.WriteString("%25")
		case '/':
			b.WriteString("%2f")
		case ':':
			b.WriteString("%3a")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
