// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// devJWTSecret signs tokens in development when JWT_SECRET is unset.
const devJWTSecret = "estate-studio-dev-secret"

// Config holds all server configuration.
type Config struct {
	Port             string
	FrontendURL      string
	DBPath           string
	LogLevel         slog.Level
	JWTSecret        string
	AuthDemoFallback bool
	SessionIdleTTL   time.Duration
	DetailsTimeout   time.Duration
	Generator        GeneratorConfig
	RateLimit        RateLimitConfig
}

// GeneratorConfig points at the content generation service.
type GeneratorConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Enabled reports whether generation features are available.
func (g GeneratorConfig) Enabled() bool {
	return g.URL != ""
}

// RateLimitConfig bounds listing generation per user.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBPath:           getEnv("DB_PATH", "./data/studio.db"),
		LogLevel:         getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		AuthDemoFallback: getEnvBool("AUTH_DEMO_FALLBACK", false),
		SessionIdleTTL:   getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		DetailsTimeout:   getEnvDuration("DETAILS_TIMEOUT", 10*time.Minute),
		Generator: GeneratorConfig{
			URL:     strings.TrimSuffix(getEnv("GENERATOR_URL", ""), "/"),
			APIKey:  getEnv("GENERATOR_API_KEY", ""),
			Timeout: getEnvDuration("GENERATOR_TIMEOUT", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 3),
		},
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = devJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.AuthDemoFallback && !c.IsDevelopment() {
		return fmt.Errorf("AUTH_DEMO_FALLBACK is only allowed in development")
	}
	if c.DetailsTimeout <= 0 {
		return fmt.Errorf("DETAILS_TIMEOUT must be > 0")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be > 0")
	}
	// A session must outlive a run waiting for details.
	if c.SessionIdleTTL <= c.DetailsTimeout {
		return fmt.Errorf("SESSION_IDLE_TTL must be greater than DETAILS_TIMEOUT")
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT must be > 0")
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"http://localhost:3000", "http://localhost:5173"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return lvl
}
