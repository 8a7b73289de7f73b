package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost/mentor_test",
		"REDIS_URL":    "redis://localhost:6379",
		"JWT_SECRET":   "test-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "INR", cfg.Currency)
	require.Equal(t, "500", cfg.DefaultHourlyRate.String())
	require.Equal(t, "15", cfg.CommissionPercent.String())
	require.Equal(t, "0.18", cfg.TaxRate.String())
	require.Equal(t, "49", cfg.AgenticAIFee.String())
	require.Equal(t, 7*24*time.Hour, cfg.QuoteRetention)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PRICING_CURRENCY"] = "USD"
	env["PRICING_COMMISSION_PERCENT"] = "20"
	env["QUOTE_RETENTION"] = "48h"
	env["PORT"] = "9090"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "USD", cfg.Currency)
	require.Equal(t, "20", cfg.CommissionPercent.String())
	require.Equal(t, 48*time.Hour, cfg.QuoteRetention)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRequiredValues(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["JWT_SECRET"] = ""
	_, err = LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsNegativeRates(t *testing.T) {
	env := baseEnv()
	env["PRICING_TAX_RATE"] = "-0.1"
	_, err := LoadForTests(env)
	require.Error(t, err)
}
