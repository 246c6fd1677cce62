package di

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

// Container provides dependency injection for the entity cache components.
// It manages singleton instances of the backend, key codec, schema registry
// and logger, and provides a factory method for building caches bound to a
// record store.
type Container struct {
	backend  cache.Backend
	keyCodec *cache.KeyCodec
	registry *entitycache.Registry
	logger   zerolog.Logger
	config   cache.Config
}

// NewContainer creates a new DI container with the provided configuration.
// It selects and initializes the backend named by config.Backend, sets up
// the key codec under config.Namespace, and builds a fresh schema registry.
func NewContainer(ctx context.Context, config cache.Config) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Container{
		backend:  backend,
		keyCodec: cache.NewKeyCodec(config.Namespace),
		registry: entitycache.NewRegistry(),
		logger:   newLogger(config.LogLevel),
		config:   config,
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default
// configuration. This is a convenience constructor for typical use cases
// where custom configuration is not required.
func NewContainerWithDefaults(ctx context.Context) (*Container, error) {
	return NewContainer(ctx, cache.DefaultConfig())
}

// NewContainerFromEnv creates a new DI container configured from the
// environment (ENTITY_CACHE_* variables layered over defaults).
func NewContainerFromEnv(ctx context.Context) (*Container, error) {
	cfg, err := cache.FromEnv()
	if err != nil {
		return nil, err
	}
	return NewContainer(ctx, cfg)
}

// Backend returns the singleton backend instance. This allows access to the
// underlying cache for advanced use cases.
func (c *Container) Backend() cache.Backend {
	return c.backend
}

// KeyCodec returns the singleton key codec instance.
func (c *Container) KeyCodec() *cache.KeyCodec {
	return c.keyCodec
}

// Registry returns the container's schema registry. Types must be registered
// on it before caches built by NewCache can fetch them.
func (c *Container) Registry() *entitycache.Registry {
	return c.registry
}

// Logger returns the container's logger.
func (c *Container) Logger() zerolog.Logger {
	return c.logger
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// NewCache builds an entity cache over the given record store, wiring in the
// container's backend, key codec, registry and logger.
func (c *Container) NewCache(store entitycache.RecordStore) *entitycache.Cache {
	return entitycache.New(c.backend, store, c.registry, c.keyCodec, c.logger)
}

func newBackend(ctx context.Context, config cache.Config) (cache.Backend, error) {
	switch config.Backend {
	case cache.BackendMemory:
		return cacheinfra.NewSturdycBackend(config.Memory)
	case cache.BackendRedis:
		return cacheinfra.NewRedisBackend(ctx, config.Redis)
	case cache.BackendNone:
		return cacheinfra.NewNoopBackend(), nil
	default:
		return nil, fmt.Errorf("di: unknown backend %q", config.Backend)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("component", "entitycache").Logger()
}
