package di

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/pkg/testsupport"
)

func TestNewContainer(t *testing.T) {
	config := cache.Config{
		Backend:   cache.BackendMemory,
		Namespace: "testapp",
		Memory: cache.MemoryConfig{
			Capacity:           1000,
			NumShards:          16,
			TTL:                5 * time.Minute,
			EvictionPercentage: 10,
		},
		LogLevel: "error",
	}

	container, err := NewContainer(context.Background(), config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container == nil {
		t.Fatal("NewContainer() returned nil container")
	}

	if container.Backend() == nil {
		t.Error("Container should have a non-nil backend")
	}
	if container.KeyCodec() == nil {
		t.Error("Container should have a non-nil key codec")
	}
	if container.Registry() == nil {
		t.Error("Container should have a non-nil registry")
	}

	stored := container.Config()
	if stored.Backend != config.Backend {
		t.Errorf("Expected backend %q, got %q", config.Backend, stored.Backend)
	}
	if stored.Namespace != config.Namespace {
		t.Errorf("Expected namespace %q, got %q", config.Namespace, stored.Namespace)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults(context.Background())
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	config := container.Config()
	defaults := cache.DefaultConfig()
	if config.Backend != defaults.Backend {
		t.Errorf("Expected default backend %q, got %q", defaults.Backend, config.Backend)
	}
	if config.Memory.Capacity != defaults.Memory.Capacity {
		t.Errorf("Expected default capacity %d, got %d", defaults.Memory.Capacity, config.Memory.Capacity)
	}
}

func TestNewContainer_NoneBackend(t *testing.T) {
	config := cache.DefaultConfig()
	config.Backend = cache.BackendNone

	container, err := NewContainer(context.Background(), config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	// The disabled backend misses everything.
	ctx := context.Background()
	if err := container.Backend().Write(ctx, "k", "v"); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if _, found, _ := container.Backend().Read(ctx, "k"); found {
		t.Error("disabled backend should not store values")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*cache.Config)
	}{
		{"unknown backend", func(c *cache.Config) { c.Backend = "carrier-pigeon" }},
		{"empty namespace", func(c *cache.Config) { c.Namespace = "" }},
		{"zero capacity", func(c *cache.Config) { c.Memory.Capacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := cache.DefaultConfig()
			tt.mutate(&config)
			if _, err := NewContainer(context.Background(), config); err == nil {
				t.Error("expected configuration error, got nil")
			}
		})
	}
}

func TestNewContainerFromEnv(t *testing.T) {
	t.Setenv("ENTITY_CACHE_BACKEND", "none")
	t.Setenv("ENTITY_CACHE_NAMESPACE", "envapp")

	container, err := NewContainerFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewContainerFromEnv() failed: %v", err)
	}
	config := container.Config()
	if config.Backend != cache.BackendNone {
		t.Errorf("env backend = %q, want none", config.Backend)
	}
	if config.Namespace != "envapp" {
		t.Errorf("env namespace = %q, want envapp", config.Namespace)
	}
}

func TestContainer_NewCache(t *testing.T) {
	config := cache.DefaultConfig()
	config.Namespace = "testapp"
	container, err := NewContainer(context.Background(), config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	store := testsupport.NewFixtureStore()
	c := container.NewCache(store)
	if c == nil {
		t.Fatal("NewCache() returned nil")
	}
	if c.Registry() != container.Registry() {
		t.Error("cache should share the container's registry")
	}
}
