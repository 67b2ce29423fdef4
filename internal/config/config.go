// Package config provides configuration loading and management for the catalog service.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// godotenv.Load() does not override already-set environment variables,
// so OS env takes precedence over .env files.
func init() {
	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the catalog service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // Catalog database connection string (PostgreSQL); empty uses the in-memory store
	SeedFile    string // JSON catalog loaded into the store at startup
	NATSURL     string // NATS server URL; empty disables event publishing
	S3Endpoint  string // S3-compatible storage endpoint
	S3Region    string // S3 region
	S3AccessKey string // S3 access key
	S3SecretKey string // S3 secret key
	PresignTTL  time.Duration

	// Live deep links
	PlayerOrigin string // Origin of the external live player
	FallbackURL  string // Opened when a live item has neither stream URL nor meeting link

	// Engine timings
	TransitionDelay time.Duration // Navigation level transition delay
	SessionIdleTTL  time.Duration // Idle navigation/playback sessions are closed after this

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Default configuration values used when environment variables are not set
const (
	defaultPort            = "8080"
	defaultS3Region        = "us-east-1"
	defaultEnv             = "dev"
	defaultPlayerOrigin    = "https://edumastervideoplarerwatch.netlify.app"
	defaultFallbackURL     = "https://edumasterliveclasses.netlify.app/?video=https%3A%2F%2Fbitdash-a.akamaihd.net%2Fcontent%2Fsintel%2Fhls%2Fplaylist.m3u8&source=edumaster&player=EduMaster%20Video%20Player&chat=true&type=live"
	defaultTransitionDelay = 100 * time.Millisecond
	defaultSessionIdleTTL  = 30 * time.Minute
	defaultPresignTTL      = 15 * time.Minute
)

// Load reads environment variables and produces a Config suitable for wiring the service.
// Returns an error if a value is present but invalid.
func Load() (Config, error) {
	cfg := Config{
		Env:          getEnv("CATALOG_ENV", defaultEnv),
		Port:         getEnv("CATALOG_PORT", defaultPort),
		DatabaseDSN:  os.Getenv("CATALOG_DB_DSN"),
		SeedFile:     os.Getenv("CATALOG_SEED_FILE"),
		NATSURL:      os.Getenv("CATALOG_NATS_URL"),
		S3Endpoint:   os.Getenv("CATALOG_S3_ENDPOINT"),
		S3Region:     getEnv("CATALOG_S3_REGION", defaultS3Region),
		S3AccessKey:  os.Getenv("CATALOG_S3_ACCESS_KEY"),
		S3SecretKey:  os.Getenv("CATALOG_S3_SECRET_KEY"),
		PlayerOrigin: strings.TrimRight(getEnv("CATALOG_PLAYER_ORIGIN", defaultPlayerOrigin), "/"),
		FallbackURL:  getEnv("CATALOG_FALLBACK_URL", defaultFallbackURL),
	}

	var err error
	if cfg.TransitionDelay, err = getDuration("CATALOG_TRANSITION_DELAY", defaultTransitionDelay); err != nil {
		return cfg, err
	}
	if cfg.SessionIdleTTL, err = getDuration("CATALOG_SESSION_IDLE_TTL", defaultSessionIdleTTL); err != nil {
		return cfg, err
	}
	if cfg.PresignTTL, err = getDuration("CATALOG_PRESIGN_TTL", defaultPresignTTL); err != nil {
		return cfg, err
	}

	// Handle CORS configuration
	if corsOrigins, exists := os.LookupEnv("CATALOG_CORS_ALLOWED_ORIGINS"); exists && corsOrigins != "" {
		cfg.CORSAllowedOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range cfg.CORSAllowedOrigins {
			cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// getDuration parses a Go duration ("250ms") or a bare number of milliseconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
