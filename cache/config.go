package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/ilyakaznacheev/cleanenv"
)

// Backend selector values for Config.Backend.
const (
	// BackendMemory runs the in-process sturdyc backend.
	BackendMemory = "memory"
	// BackendRedis runs the shared Redis backend.
	BackendRedis = "redis"
	// BackendNone disables caching entirely; every read is a miss and every
	// write is discarded, so the layer behaves as pure passthrough to the
	// record store.
	BackendNone = "none"
)

// Config selects and tunes the cache backend and the key namespace.
// Fields carry env tags so deployments can configure the layer without
// code changes; see FromEnv.
type Config struct {
	// Backend picks the backend implementation: memory, redis or none.
	Backend string `env:"ENTITY_CACHE_BACKEND" env-default:"memory"`

	// Namespace prefixes every cache key. Deployments sharing one backend
	// across applications must use distinct namespaces.
	Namespace string `env:"ENTITY_CACHE_NAMESPACE" env-default:"entitycache"`

	Memory MemoryConfig
	Redis  RedisConfig

	// LogLevel is the minimum level for the layer's structured logs.
	LogLevel string `env:"ENTITY_CACHE_LOG_LEVEL" env-default:"info"`
}

// MemoryConfig tunes the in-process sturdyc backend.
type MemoryConfig struct {
	// Capacity is the maximum number of entries the cache can store.
	Capacity int `env:"ENTITY_CACHE_CAPACITY" env-default:"10000"`

	// NumShards determines the number of cache shards for concurrent
	// access. Higher values improve concurrency but increase memory
	// overhead.
	NumShards int `env:"ENTITY_CACHE_NUM_SHARDS" env-default:"256"`

	// TTL is the default time-to-live for cached entries.
	TTL time.Duration `env:"ENTITY_CACHE_TTL" env-default:"5m"`

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int `env:"ENTITY_CACHE_EVICTION_PERCENTAGE" env-default:"10"`

	// EvictionInterval sets how often the cache checks for expired
	// entries. Zero uses the sturdyc default.
	EvictionInterval time.Duration `env:"ENTITY_CACHE_EVICTION_INTERVAL"`
}

// RedisConfig addresses the shared Redis backend.
type RedisConfig struct {
	Addr     string `env:"ENTITY_CACHE_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"ENTITY_CACHE_REDIS_PASSWORD"`
	DB       int    `env:"ENTITY_CACHE_REDIS_DB"`

	DialTimeout  time.Duration `env:"ENTITY_CACHE_REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `env:"ENTITY_CACHE_REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `env:"ENTITY_CACHE_REDIS_WRITE_TIMEOUT" env-default:"3s"`

	// TTL is applied to every written entry. Zero means no expiry.
	TTL time.Duration `env:"ENTITY_CACHE_REDIS_TTL" env-default:"6h"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendMemory,
		Namespace: "entitycache",
		Memory: MemoryConfig{
			Capacity:           10000,
			NumShards:          256,
			TTL:                5 * time.Minute,
			EvictionPercentage: 10,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			TTL:          6 * time.Hour,
		},
		LogLevel: "info",
	}
}

// FromEnv builds a Config from defaults overridden by environment
// variables, then validates it.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendRedis, BackendNone)),
		validation.Field(&c.Namespace, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error", "")),
	)
	if err != nil {
		return err
	}

	switch c.Backend {
	case BackendMemory:
		return c.Memory.Validate()
	case BackendRedis:
		return c.Redis.Validate()
	}
	return nil
}

// Validate checks the in-process backend tuning.
func (c MemoryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// Validate checks the Redis backend addressing.
func (c RedisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	)
}
