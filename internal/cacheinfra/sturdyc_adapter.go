// Package cacheinfra provides the cache.Backend implementations: an
// in-process sturdyc store, a shared Redis store and a disabled passthrough.
package cacheinfra

import (
	"context"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-entity-cache/cache"
)

// SturdycBackend is the in-process cache.Backend backed by a sturdyc
// client. Entries expire per the configured TTL and are evicted in batches
// when capacity is reached; both are sturdyc's concern, not this adapter's.
//
// Version compatibility note: this implementation assumes sturdyc v1.x API.
// Monitor sturdyc version upgrades for potential option mapping changes.
type SturdycBackend struct {
	client *sturdyc.Client[any]
}

var _ cache.Backend = (*SturdycBackend)(nil)

// NewSturdycBackend validates cfg and initializes a sturdyc client with the
// provided settings. Capacity, NumShards, TTL and EvictionPercentage are
// passed to the sturdyc.New constructor; the eviction interval maps to a
// client option when set.
func NewSturdycBackend(cfg cache.MemoryConfig) (*SturdycBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		options...,
	)

	return &SturdycBackend{client: client}, nil
}

// Read returns the value stored under key, if any.
func (b *SturdycBackend) Read(_ context.Context, key string) (any, bool, error) {
	value, ok := b.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// ReadMulti returns the present subset of keys. sturdyc shards by key, so
// this is a per-key lookup under the hood; there is no cross-key atomicity.
func (b *SturdycBackend) ReadMulti(_ context.Context, keys []string) (map[string]any, error) {
	result := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := b.client.Get(key); ok {
			result[key] = value
		}
	}
	return result, nil
}

// Write stores value under key. Values are kept as-is, no serialization
// happens for the in-process store.
func (b *SturdycBackend) Write(_ context.Context, key string, value any) error {
	b.client.Set(key, value)
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (b *SturdycBackend) Delete(_ context.Context, key string) error {
	b.client.Delete(key)
	return nil
}

// Clear removes every entry.
func (b *SturdycBackend) Clear(_ context.Context) error {
	for _, key := range b.client.ScanKeys() {
		b.client.Delete(key)
	}
	return nil
}

// Size reports the number of live entries, useful for diagnostics.
func (b *SturdycBackend) Size() int {
	return b.client.Size()
}
