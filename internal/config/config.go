// Package config loads gateway and CLI settings from the environment.
// .env.local and .env are read first when present; real environment
// variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gadget-sense/gadget-sense/internal/analysis"
	"github.com/gadget-sense/gadget-sense/internal/cache"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable of the gateway.
type Config struct {
	Port     string
	Env      string
	LogLevel string
	LogFile  string

	SentryDSN string

	ObservabilityEnabled bool
	MetricsAddr          string
	OTLPEndpoint         string
	OTLPHeaders          map[string]string
	OTLPInsecure         bool

	AnalysisURL       string
	AnalysisTimeout   time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	AnalysisRateLimit float64

	CacheTTL  time.Duration
	CacheSize int

	RateLimitRPS   float64
	RateLimitBurst int

	AllowedOrigin string
}

// Load reads .env files, then the environment.
func Load() (*Config, error) {
	// Missing files are fine; the environment may be set directly
	_ = godotenv.Load(".env.local", ".env")
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:     getEnvWithDefault("PORT", "8080"),
		Env:      getEnvWithDefault("APP_ENV", "development"),
		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		SentryDSN: os.Getenv("SENTRY_DSN"),

		ObservabilityEnabled: getEnvBool("OBSERVABILITY_ENABLED", true),
		MetricsAddr:          getEnvWithDefault("METRICS_ADDR", ":9464"),
		OTLPEndpoint:         strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPHeaders:          ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		OTLPInsecure:         getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),

		AnalysisURL:       getEnvWithDefault("ANALYSIS_API_URL", analysis.DefaultBaseURL),
		AnalysisTimeout:   getEnvDuration("ANALYSIS_TIMEOUT", analysis.DefaultTimeout),
		MaxRetries:        getEnvInt("ANALYSIS_MAX_RETRIES", analysis.DefaultRetryPolicy().MaxRetries),
		RetryBaseDelay:    getEnvDuration("ANALYSIS_RETRY_BASE_DELAY", analysis.DefaultRetryPolicy().BaseDelay),
		AnalysisRateLimit: getEnvFloat("ANALYSIS_RATE_LIMIT", 0),

		CacheTTL:  getEnvDuration("CACHE_TTL", cache.DefaultTTL),
		CacheSize: getEnvInt("CACHE_SIZE", cache.DefaultSize),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		AllowedOrigin: getEnvWithDefault("CORS_ALLOWED_ORIGIN", "*"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client or server cannot run with.
func (c *Config) Validate() error {
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("config: ANALYSIS_TIMEOUT must be positive, got %s", c.AnalysisTimeout)
	}
	if !strings.HasPrefix(c.AnalysisURL, "http://") && !strings.HasPrefix(c.AnalysisURL, "https://") {
		return fmt.Errorf("config: ANALYSIS_API_URL must be an http(s) URL, got %q", c.AnalysisURL)
	}
	return nil
}

// RetryPolicy is the configured backoff policy.
func (c *Config) RetryPolicy() analysis.RetryPolicy {
	return analysis.RetryPolicy{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBaseDelay}
}

// ClientOptions configures an analysis.Client from c.
func (c *Config) ClientOptions() []analysis.Option {
	return []analysis.Option{
		analysis.WithBaseURL(c.AnalysisURL),
		analysis.WithTimeout(c.AnalysisTimeout),
		analysis.WithRetryPolicy(c.RetryPolicy()),
		analysis.WithRateLimit(c.AnalysisRateLimit, 1),
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		warnInvalid(key, value, strconv.Itoa(defaultValue))
		return defaultValue
	}
	return result
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		warnInvalid(key, value, strconv.FormatFloat(defaultValue, 'f', -1, 64))
		return defaultValue
	}
	return result
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	result, err := strconv.ParseBool(value)
	if err != nil {
		warnInvalid(key, value, strconv.FormatBool(defaultValue))
		return defaultValue
	}
	return result
}

// getEnvDuration accepts Go durations ("90s") or a bare number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	result, err := time.ParseDuration(value)
	if err != nil {
		warnInvalid(key, value, defaultValue.String())
		return defaultValue
	}
	return result
}

func warnInvalid(key, value, defaultValue string) {
	log.Warn().
		Str("key", key).
		Str("value", value).
		Str("default", defaultValue).
		Msg("Invalid value in environment variable, using default")
}

// ParseOTLPHeaders parses "k1=v1,k2=v2" as used by OTEL_EXPORTER_OTLP_HEADERS.
func ParseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}

	return headers
}
