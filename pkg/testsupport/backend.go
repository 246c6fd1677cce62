package testsupport

import (
	"context"
	"sync"

	"github.com/goliatone/go-entity-cache/cache"
)

// CountingBackend is an in-memory cache.Backend that counts every
// operation and optionally injects failures, so tests can assert exactly
// how many backend round trips an operation cost.
type CountingBackend struct {
	mu   sync.Mutex
	data map[string]any

	Reads      int
	MultiReads int
	Writes     int
	Deletes    int
	Clears     int

	// ReadErr, WriteErr and DeleteErr, when set, fail the corresponding
	// operations.
	ReadErr   error
	WriteErr  error
	DeleteErr error
}

var _ cache.Backend = (*CountingBackend)(nil)

// NewCountingBackend returns an empty instrumented backend.
func NewCountingBackend() *CountingBackend {
	return &CountingBackend{data: make(map[string]any)}
}

func (b *CountingBackend) Read(_ context.Context, key string) (any, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Reads++
	if b.ReadErr != nil {
		return nil, false, b.ReadErr
	}
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *CountingBackend) ReadMulti(_ context.Context, keys []string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.MultiReads++
	if b.ReadErr != nil {
		return nil, b.ReadErr
	}
	result := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := b.data[key]; ok {
			result[key] = v
		}
	}
	return result, nil
}

func (b *CountingBackend) Write(_ context.Context, key string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Writes++
	if b.WriteErr != nil {
		return b.WriteErr
	}
	b.data[key] = value
	return nil
}

func (b *CountingBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletes++
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	delete(b.data, key)
	return nil
}

func (b *CountingBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clears++
	b.data = make(map[string]any)
	return nil
}

// Len reports the number of stored entries.
func (b *CountingBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Has reports whether the backend currently holds key.
func (b *CountingBackend) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

// Keys returns a snapshot of the stored keys.
func (b *CountingBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys
}
