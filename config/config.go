package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/krisalay/memo-cache/types"
)

type Config struct {
	Cache CacheConfig
	Redis RedisConfig
	Bolt  BoltConfig
	Log   LogConfig
}

type CacheConfig struct {
	Backend string `validate:"oneof=memory redis bolt"`
	// Version salts remote key digests, so releases do not share entries.
	Version    string
	Codec      string `validate:"oneof=json msgpack"`
	DefaultTTL time.Duration
	Shards     int `validate:"min=1,max=4096"`
}

type RedisConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
	DB       int `validate:"gte=0"`
	// Pool and timeout settings
	PoolSize        int `validate:"gte=0"`
	MinIdleConns    int `validate:"gte=0"`
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
}

type BoltConfig struct {
	Path   string `validate:"required"`
	Bucket string `validate:"required"`
}

type LogConfig struct {
	Level  string
	Format string `validate:"oneof=json text"` // json or text
}

var validate = validator.New()

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Cache: CacheConfig{
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			Version:    getEnv("CACHE_VERSION", ""),
			Codec:      getEnv("CACHE_CODEC", "json"),
			DefaultTTL: getDurationEnv("CACHE_DEFAULT_TTL", 5*time.Minute),
			Shards:     getIntEnv("CACHE_SHARDS", 16),
		},
		Redis: RedisConfig{
			Host:            getEnv("REDIS_HOST", "localhost"),
			Port:            getEnv("REDIS_PORT", "6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getIntEnv("REDIS_DB", 0),
			PoolSize:        getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns:    getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:     getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:     getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			ConnMaxIdleTime: getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Bolt: BoltConfig{
			Path:   getEnv("BOLT_PATH", "memo-cache.db"),
			Bucket: getEnv("BOLT_BUCKET", "cache"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the sections the selected backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Cache); err != nil {
		return fmt.Errorf("%w: cache: %w", types.ErrConfiguration, err)
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("%w: cache: default ttl must not be negative", types.ErrConfiguration)
	}
	if err := validate.Struct(c.Log); err != nil {
		return fmt.Errorf("%w: log: %w", types.ErrConfiguration, err)
	}

	switch c.Cache.Backend {
	case "redis":
		if err := validate.Struct(c.Redis); err != nil {
			return fmt.Errorf("%w: redis: %w", types.ErrConfiguration, err)
		}
	case "bolt":
		if err := validate.Struct(c.Bolt); err != nil {
			return fmt.Errorf("%w: bolt: %w", types.ErrConfiguration, err)
		}
	}
	return nil
}

// Addr is the host:port of the Redis server.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
