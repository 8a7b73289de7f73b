package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	// Pricing policy defaults; effective configuration in the database
	// overrides these per mentor/region/window.
	Currency          string
	DefaultHourlyRate decimal.Decimal
	CommissionPercent decimal.Decimal
	TaxRate           decimal.Decimal
	AgenticAIFee      decimal.Decimal

	// QuoteRetention is how long an unconfirmed quote stays visible before
	// the sweeper archives it.
	QuoteRetention time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int

	CalculateRateLimit int
	RateLimitWindow    time.Duration
	BreakdownCacheTTL  time.Duration
	IdempotencyTTL     time.Duration

	OTLPEndpoint string
	LogFormat    string
	LogLevel     string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		Currency:          valueOrDefault(k.String("PRICING_CURRENCY"), "INR"),
		DefaultHourlyRate: parseDecimal(k.String("PRICING_DEFAULT_HOURLY_RATE"), "500.00"),
		CommissionPercent: parseDecimal(k.String("PRICING_COMMISSION_PERCENT"), "15"),
		TaxRate:           parseDecimal(k.String("PRICING_TAX_RATE"), "0.18"),
		AgenticAIFee:      parseDecimal(k.String("PRICING_AGENTIC_AI_FEE"), "49.00"),

		QuoteRetention: parseDuration(k.String("QUOTE_RETENTION"), "168h"),
		SweepInterval:  parseDuration(k.String("QUOTE_SWEEP_INTERVAL"), "1h"),
		SweepBatchSize: intOrDefault(k.Int("QUOTE_SWEEP_BATCH_SIZE"), 500),

		CalculateRateLimit: intOrDefault(k.Int("CALCULATE_RATE_LIMIT"), 60),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		BreakdownCacheTTL:  parseDuration(k.String("BREAKDOWN_CACHE_TTL"), "10m"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		OTLPEndpoint: strings.TrimSpace(k.String("OTLP_ENDPOINT")),
		LogFormat:    valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:     valueOrDefault(k.String("LOG_LEVEL"), "info"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.TaxRate.IsNegative() || cfg.CommissionPercent.IsNegative() {
		return nil, errors.New("pricing rates must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseDecimal(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
