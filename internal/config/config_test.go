package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "screening.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "X-Caller-ID", cfg.Server.CallerHeader)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "usd", cfg.Billing.Currency)
	assert.False(t, cfg.Billing.LedgerDisabled)
	assert.Empty(t, cfg.OpenRouter.Key)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SCREENING_STORE_DRIVER", "postgres")
	t.Setenv("SCREENING_SERVER_PORT", "9090")
	t.Setenv("SCREENING_OPENROUTER_KEY", "sk-managed")
	t.Setenv("SCREENING_BILLING_LEDGER_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-managed", cfg.OpenRouter.Key)
	assert.True(t, cfg.Billing.LedgerDisabled)
}

func TestInitLogger_RejectsUnknownLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "chatty", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_ConsoleFormat(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
