// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Config holds all service configuration. Values come from the environment;
// a .env file (loaded by the caller via godotenv) may supply them in dev.
type Config struct {
	AppName string
	Debug   bool

	// DatabaseURL is a pgx-compatible connection string.
	DatabaseURL      string
	DatabasePoolSize int

	// RedisURL backs the query cache, the rate limiter, and the event bus.
	RedisURL string

	// APIKey is the shared secret required on every non-health route.
	APIKey string

	HTTPPort string
}

// Load reads configuration from the environment. DATABASE_URL, REDIS_URL,
// and API_KEY are required; everything else has defaults.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnvOrDefault("APP_NAME", "strym"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabasePoolSize: 20,
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           os.Getenv("API_KEY"),
		HTTPPort:         getEnvOrDefault("HTTP_PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("API_KEY is required")
	}

	if v := os.Getenv("DATABASE_POOL_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return Config{}, fmt.Errorf("invalid DATABASE_POOL_SIZE: %q", v)
		}
		cfg.DatabasePoolSize = size
	}

	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEBUG: %q", v)
		}
		cfg.Debug = debug
	}

	return cfg, nil
}

// SetupLogging configures the default slog level from the Debug flag.
func (c Config) SetupLogging() {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
