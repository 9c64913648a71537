// Package config loads the closed set of environment variables the
// detection core runs on. It follows the teacher's getEnvOrDefault idiom
// (cmd/server/main.go) generalized into a typed Config struct, and loads a
// .env file first via godotenv the way tefkah-seek-tune's server does.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the closed set of tunables the orchestrator and recognizer
// chain need. Every field maps to exactly one environment variable.
type Config struct {
	DatabaseURL string

	MaxConcurrent   int
	IntervalSeconds int

	AcoustIDEnabled          bool
	AcoustIDAPIKey           string
	AuddEnabled              bool
	AuddAPIKey               string
	ExternalDetectionEnabled bool

	FpcalcPath string
}

// Load reads a .env file if present (missing is not an error, mirroring
// godotenv.Load's own behavior across the pack) then populates Config from
// the environment, applying defaults for anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:              getEnvOrDefault("DATABASE_URL", "sodav.sqlite3"),
		MaxConcurrent:            getEnvIntOrDefault("MAX_CONCURRENT", 5),
		IntervalSeconds:          getEnvIntOrDefault("INTERVAL_SECONDS", 60),
		AcoustIDEnabled:          getEnvBoolOrDefault("ACOUSTID_ENABLED", true),
		AcoustIDAPIKey:           os.Getenv("ACOUSTID_API_KEY"),
		AuddEnabled:              getEnvBoolOrDefault("AUDD_ENABLED", false),
		AuddAPIKey:               os.Getenv("AUDD_API_KEY"),
		ExternalDetectionEnabled: getEnvBoolOrDefault("EXTERNAL_DETECTION_ENABLED", true),
		FpcalcPath:               getEnvOrDefault("FPCALC_PATH", "fpcalc"),
	}

	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT must be >= 1, got %d", cfg.MaxConcurrent)
	}

	return cfg, nil
}

// PollInterval is IntervalSeconds as a time.Duration, for convenience at
// the orchestrator's scheduling edge.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
