package cache

import "context"

// Backend is the key-value store the caching layer sits in front of.
// Implementations are expected to be safe for concurrent use; individual
// key operations are atomic but multi-key operations are not transactional
// across keys.
type Backend interface {
	// Read returns the value stored under key. The second return value
	// reports whether the key was present; a missing key is not an error.
	Read(ctx context.Context, key string) (any, bool, error)

	// ReadMulti returns the values for the given keys. The result map only
	// contains keys that were present in the backend. No ordering is
	// assumed across independent keys.
	ReadMulti(ctx context.Context, keys []string) (map[string]any, error)

	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting an absent key is a no-op, not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry. Destructive; intended for test and reset
	// paths only.
	Clear(ctx context.Context) error
}
