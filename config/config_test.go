package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[server]
port = "9000"

[gateway]
requests_per_window = 30
window = "30s"

[gateway.channels]
dashboard = "key-dash"
trending = "key-trend"
search = "key-search"
details = "key-details"
trading = "key-trade"

[history]
base_url = "https://history.example.com"
api_key = "hist"

[portfolio]
starting_cash = "50000"

[auth]
jwt_secret = "secret"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 30, cfg.Gateway.RequestsPerWindow)
	assert.Equal(t, 30*time.Second, cfg.Gateway.GetWindow())
	assert.Equal(t, "key-trade", cfg.Gateway.Channels["trading"])
	assert.NoError(t, cfg.Validate())

	cash, err := cfg.StartingCash()
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.NewFromInt(50000)))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("FINNHUB_KEY_TRADING", "env-trade")
	t.Setenv("GATEWAY_REQUESTS_PER_WINDOW", "5")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "env-trade", cfg.Gateway.Channels["trading"])
	assert.Equal(t, "key-dash", cfg.Gateway.Channels["dashboard"])
	assert.Equal(t, 5, cfg.Gateway.RequestsPerWindow)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	for _, env := range []string{"PORT", "GATEWAY_REQUESTS_PER_WINDOW", "STARTING_CASH"} {
		t.Setenv(env, "")
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 60, cfg.Gateway.RequestsPerWindow)
	assert.Equal(t, time.Minute, cfg.Gateway.GetWindow())
	assert.Equal(t, 24*time.Hour, cfg.Redis.GetPriceTTL())
	assert.Equal(t, "100000", cfg.Portfolio.StartingCash)
}

func TestValidateReportsMissingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "FINNHUB_KEY_DASHBOARD")
	assert.Contains(t, err.Error(), "HISTORY_BASE_URL")
}

func TestStartingCashMustBePositive(t *testing.T) {
	cfg := &Config{Portfolio: PortfolioConfig{StartingCash: "-1"}}
	_, err := cfg.StartingCash()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	dsn := DatabaseConfig{Host: "db", User: "u", Password: "p", Name: "paper", Port: "5432", SSLMode: "disable"}.DSN()
	assert.Equal(t, "host=db user=u password=p dbname=paper port=5432 sslmode=disable TimeZone=UTC", dsn)
}
