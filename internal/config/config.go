// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	WarmCache     bool
}

// UseRedis reports whether a Redis address is configured. Without one the
// process falls back to an in-memory key-value store, which keeps admission
// working on a single node but shares nothing across processes.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables and returns a validated
// Config. All variables are optional and default to a local single-node
// setup: SCALAPI_LISTEN_ADDR (127.0.0.1:8080), SCALAPI_DB_PATH
// (scalable-api.db), SCALAPI_REDIS_ADDR (empty, in-memory store),
// SCALAPI_REDIS_PASSWORD, SCALAPI_REDIS_DB (0), SCALAPI_CACHE_TTL (15m),
// SCALAPI_CACHE_WARM (true).
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("SCALAPI_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "scalable-api.db"
	if v, ok := os.LookupEnv("SCALAPI_DB_PATH"); ok {
		dbPath = v
	}

	redisAddr := os.Getenv("SCALAPI_REDIS_ADDR")
	redisPassword := os.Getenv("SCALAPI_REDIS_PASSWORD")

	redisDB := 0
	if v, ok := os.LookupEnv("SCALAPI_REDIS_DB"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SCALAPI_REDIS_DB has invalid integer %q: %w", v, err)
		}
		redisDB = parsed
	}

	cacheTTL := 15 * time.Minute
	if v, ok := os.LookupEnv("SCALAPI_CACHE_TTL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SCALAPI_CACHE_TTL has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("SCALAPI_CACHE_TTL must be positive, got %q", v)
		}
		cacheTTL = parsed
	}

	warmCache := true
	if v, ok := os.LookupEnv("SCALAPI_CACHE_WARM"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("SCALAPI_CACHE_WARM has invalid boolean %q: %w", v, err)
		}
		warmCache = parsed
	}

	return &Config{
		ListenAddr:    listenAddr,
		DBPath:        dbPath,
		RedisAddr:     redisAddr,
		RedisPassword: redisPassword,
		RedisDB:       redisDB,
		CacheTTL:      cacheTTL,
		WarmCache:     warmCache,
	}, nil
}
