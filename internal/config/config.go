// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (rate limiting; optional, limiter falls back to memory)
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`

	// Geographic reference lookup service (optional; names degrade to
	// "unknown" without it)
	GeoLookupURL string `koanf:"geo_lookup_url"`

	// Rate limiting
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// CORS allowlist; empty disables cross-origin access
	AllowedOrigins []string `koanf:"allowed_origins"`

	// Tracing
	TracingEnabled bool   `koanf:"tracing_enabled"`
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
	OTLPProtocol   string `koanf:"otlp_protocol"` // "http" or "grpc"
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidOTLPProto   = errors.New("OTLP_PROTOCOL must be \"http\" or \"grpc\"")
)

// Default values for non-secret configuration.
const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultRateLimitPerMinute = 120
	DefaultOTLPProtocol       = "http"
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try FIELDCOORD_PORT first, then PORT
	port, portErr := getEnvIntOrDefaultMulti([]string{"FIELDCOORD_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	rateLimit, rateLimitErr := getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", k.Int("rate_limit_per_minute"), DefaultRateLimitPerMinute)
	if rateLimitErr != nil {
		loadErrs = append(loadErrs, rateLimitErr)
	}

	tracingEnabled := false
	if k.Exists("tracing_enabled") {
		tracingEnabled = k.Bool("tracing_enabled")
	}
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			tracingEnabled = true
		case "false", "0", "no", "off":
			tracingEnabled = false
		}
	}

	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefaultMulti([]string{"FIELDCOORD_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:           getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:          getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		GeoLookupURL:       getEnvOrKoanf("GEO_LOOKUP_URL", k, "geo_lookup_url"),
		RateLimitPerMinute: rateLimit,
		AllowedOrigins:     getEnvListOrKoanf("ALLOWED_ORIGINS", k, "allowed_origins"),
		TracingEnabled:     tracingEnabled,
		OTLPEndpoint:       getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		OTLPProtocol:       getEnvOrDefault("OTLP_PROTOCOL", k.String("otlp_protocol"), DefaultOTLPProtocol),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvListOrKoanf returns the environment variable split on commas if set,
// otherwise the koanf string slice.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.OTLPProtocol != "http" && c.OTLPProtocol != "grpc" {
		errs = append(errs, ErrInvalidOTLPProto)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"database_url":          maskDatabaseURL(c.DatabaseURL),
		"redis_url":             maskDatabaseURL(c.RedisURL),
		"jwt_secret":            maskSecret(c.JWTSecret),
		"geo_lookup_url":        c.GeoLookupURL,
		"rate_limit_per_minute": fmt.Sprintf("%d", c.RateLimitPerMinute),
		"allowed_origins":       strings.Join(c.AllowedOrigins, ","),
		"tracing_enabled":       fmt.Sprintf("%t", c.TracingEnabled),
		"otlp_endpoint":         c.OTLPEndpoint,
		"otlp_protocol":         c.OTLPProtocol,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
