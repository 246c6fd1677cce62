package cacheinfra

import (
	"context"

	"github.com/goliatone/go-entity-cache/cache"
)

// NoopBackend is the disabled cache: every read misses and every write is
// discarded. With it in place the entity cache degrades to pure passthrough
// against the record store, which is the intended behavior when caching is
// turned off rather than an error state.
type NoopBackend struct{}

var _ cache.Backend = NoopBackend{}

// NewNoopBackend returns the disabled backend.
func NewNoopBackend() NoopBackend {
	return NoopBackend{}
}

func (NoopBackend) Read(context.Context, string) (any, bool, error) {
	return nil, false, nil
}

func (NoopBackend) ReadMulti(_ context.Context, _ []string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (NoopBackend) Write(context.Context, string, any) error { return nil }

func (NoopBackend) Delete(context.Context, string) error { return nil }

func (NoopBackend) Clear(context.Context) error { return nil }
