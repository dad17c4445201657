package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-enginev1/internal/config"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func chdir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	acct := cfg.PortfolioAccount()
	assert.Equal(t, "10000", acct.InitialCapital.String())
	assert.Equal(t, "20", acct.TransactionCost.String())
	assert.Equal(t, "0.01", acct.RiskFraction.String())
	assert.Equal(t, "0.05", acct.StopFraction.String())
	assert.False(t, cfg.Live())
}

func TestLoad_YAML(t *testing.T) {
	chdir(t)
	path := writeFile(t, "engine.yaml", `
mode: LIVE
symbols: [AAPL, MSFT]
tick_interval: 1m
account:
  initial_capital: 25000
  transaction_cost: 10
  risk_fraction: 0.02
  stop_fraction: 0.05
persistence:
  positions_store: sqlite
  sqlite_path: state.db
  history_stores: [sqlite, memory]
  max_failures: 5
  reset_timeout: 1m
market:
  session: NSE
  holidays: ["2026-12-31"]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Live())
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Symbols)
	assert.Equal(t, time.Minute, cfg.TickInterval.Duration)
	assert.Equal(t, 25000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 5, cfg.Persistence.MaxFailures)
	assert.Equal(t, time.Minute, cfg.Persistence.ResetTimeout.Duration)
	assert.True(t, cfg.NeedsSQLite())
	assert.False(t, cfg.NeedsRedis())

	s, err := cfg.Session()
	require.NoError(t, err)
	assert.False(t, s.IsTradingDay(time.Date(2026, time.December, 31, 10, 0, 0, 0, s.Location)))
}

func TestLoad_JSONFallback(t *testing.T) {
	chdir(t)
	path := writeFile(t, "engine.json", `{"mode": "BACKTEST", "symbols": ["INFY"], "tick_interval": "30s"}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"INFY"}, cfg.Symbols)
	assert.Equal(t, 30*time.Second, cfg.TickInterval.Duration)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("TRADE_MODE", "live")
	t.Setenv("SYMBOLS", "TCS, INFY")
	t.Setenv("INITIAL_CAPITAL", "50000")
	t.Setenv("HISTORY_STORE", "redis,sqlite")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.ModeLive, cfg.Mode)
	assert.Equal(t, []string{"TCS", "INFY"}, cfg.Symbols)
	assert.Equal(t, 50000.0, cfg.Account.InitialCapital)
	assert.True(t, cfg.NeedsRedis())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile(".env", []byte("TRANSACTION_COST=7\n"), 0o644))
	// Register a restore, then clear: godotenv never overrides a set variable.
	t.Setenv("TRANSACTION_COST", "")
	require.NoError(t, os.Unsetenv("TRANSACTION_COST"))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.Account.TransactionCost)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	chdir(t)
	t.Setenv("INITIAL_CAPITAL", "lots")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "INITIAL_CAPITAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"mode", func(c *config.Config) { c.Mode = "PAPER" }, "mode"},
		{"symbols", func(c *config.Config) { c.Symbols = nil }, "symbol"},
		{"capital", func(c *config.Config) { c.Account.InitialCapital = 0 }, "initial_capital"},
		{"cost", func(c *config.Config) { c.Account.TransactionCost = -1 }, "transaction_cost"},
		{"risk", func(c *config.Config) { c.Account.RiskFraction = 1.5 }, "risk_fraction"},
		{"threshold", func(c *config.Config) { c.Strategy.Threshold = 0 }, "threshold"},
		{"store", func(c *config.Config) { c.Persistence.PositionsStore = "csv" }, "positions_store"},
		{"history", func(c *config.Config) { c.Persistence.HistoryStores = []string{"csv"} }, "history store"},
		{"redis", func(c *config.Config) {
			c.Persistence.HistoryStores = []string{"redis"}
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"session", func(c *config.Config) { c.Market.Session = "LSE" }, "market.session"},
		{"clock", func(c *config.Config) { c.Market.Close = "09:00" }, "market.close"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestSession_Always(t *testing.T) {
	cfg := config.Default()
	cfg.Market.Session = "always"
	s, err := cfg.Session()
	require.NoError(t, err)
	assert.True(t, s.AlwaysOpen)
}
