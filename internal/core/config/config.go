package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration read from the environment. main loads .env
// first, so system variables win over the file.
type Config struct {
	DatabaseURL      string
	Host             string
	Env              string
	JWTSecret        string
	RedisAddr        string
	SnapshotCacheTTL time.Duration
	RequestTimeout   time.Duration
	ConflictRetries  int
	RateLimit        int
	MigrationsDir    string
}

func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Host:          getenv("APP_HOST", ":8080"),
		Env:           getenv("APP_ENV", "development"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "./migrations"),
	}

	var err error
	if cfg.SnapshotCacheTTL, err = duration("SNAPSHOT_CACHE_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = duration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}

	cfg.ConflictRetries = 3
	if raw := os.Getenv("LEDGER_CONFLICT_RETRIES"); raw != "" {
		retries, err := strconv.Atoi(raw)
		if err != nil || retries < 1 {
			return Config{}, fmt.Errorf("LEDGER_CONFLICT_RETRIES must be a positive integer, got %q", raw)
		}
		cfg.ConflictRetries = retries
	}

	cfg.RateLimit = 120
	if raw := os.Getenv("RATE_LIMIT_PER_MINUTE"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Config{}, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be a positive integer, got %q", raw)
		}
		cfg.RateLimit = limit
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL environment variable is not set")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
