package entitycache

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Fetch when a lookup resolves to absence,
// whether from a cached absence sentinel or a record store miss.
var ErrNotFound = errors.New("entitycache: record not found")

// UsageError reports a misuse of the caching API: an unregistered type, an
// unknown relationship name, an unsupported prefetch shape, or a primary
// lookup on a type that declared none. It is fatal to the calling operation
// and never retried.
type UsageError struct {
	Op     string
	Type   string
	Name   string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("entitycache: %s %s.%s: %s", e.Op, e.Type, e.Name, e.Reason)
	}
	return fmt.Sprintf("entitycache: %s %s: %s", e.Op, e.Type, e.Reason)
}

func usageError(op, typeName, name, reason string) *UsageError {
	return &UsageError{Op: op, Type: typeName, Name: name, Reason: reason}
}

// UnknownTypeError reports an envelope whose type identity is not in the
// registry. The decoder retries once after asking the registry's resolver
// for the missing type; if that fails the original error surfaces.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("entitycache: unknown cached type %q", e.Type)
}
