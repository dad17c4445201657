// Package config loads engine settings from a YAML (or JSON) file and the
// environment. Environment variables, including those from a .env file,
// override file values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"trading-enginev1/internal/markethours"
	"trading-enginev1/internal/portfolio"
)

// Trade modes.
const (
	ModeLive     = "LIVE"
	ModeBacktest = "BACKTEST"
)

// Store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Duration is a time.Duration read from strings such as "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete engine configuration.
type Config struct {
	Mode         string   `json:"mode" yaml:"mode"`
	Symbols      []string `json:"symbols" yaml:"symbols"`
	TickInterval Duration `json:"tick_interval" yaml:"tick_interval"`

	Account     AccountConfig     `json:"account" yaml:"account"`
	Strategy    StrategyConfig    `json:"strategy" yaml:"strategy"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Redis       RedisConfig       `json:"redis" yaml:"redis"`
	Market      MarketConfig      `json:"market" yaml:"market"`
	Alerts      AlertConfig       `json:"alerts" yaml:"alerts"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	Log         LogConfig         `json:"log" yaml:"log"`
}

// AccountConfig holds capital and sizing parameters.
type AccountConfig struct {
	InitialCapital  float64 `json:"initial_capital" yaml:"initial_capital"`
	TransactionCost float64 `json:"transaction_cost" yaml:"transaction_cost"`
	RiskFraction    float64 `json:"risk_fraction" yaml:"risk_fraction"`
	StopFraction    float64 `json:"stop_fraction" yaml:"stop_fraction"`
}

// StrategyConfig holds consensus parameters.
type StrategyConfig struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// PersistenceConfig selects the position store and history sinks.
type PersistenceConfig struct {
	PositionsStore string   `json:"positions_store" yaml:"positions_store"` // json, sqlite or memory
	PositionsPath  string   `json:"positions_path" yaml:"positions_path"`
	SQLitePath     string   `json:"sqlite_path" yaml:"sqlite_path"`
	HistoryStores  []string `json:"history_stores" yaml:"history_stores"` // sqlite, redis, memory
	MaxFailures    int      `json:"max_failures" yaml:"max_failures"`
	ResetTimeout   Duration `json:"reset_timeout" yaml:"reset_timeout"`
	HistoryQueue   int      `json:"history_queue" yaml:"history_queue"`
}

// RedisConfig configures the snapshot source and trade publisher.
type RedisConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	Password       string   `json:"password" yaml:"password"`
	DB             int      `json:"db" yaml:"db"`
	SnapshotMaxAge Duration `json:"snapshot_max_age" yaml:"snapshot_max_age"`
}

// MarketConfig configures the trading session gate.
type MarketConfig struct {
	Session  string   `json:"session" yaml:"session"` // NSE or ALWAYS
	Timezone string   `json:"timezone" yaml:"timezone"`
	Open     string   `json:"open" yaml:"open"`   // HH:MM
	Close    string   `json:"close" yaml:"close"` // HH:MM
	Holidays []string `json:"holidays" yaml:"holidays"`
}

// AlertConfig configures notifiers. Empty credentials disable a channel.
type AlertConfig struct {
	TelegramBotToken string `json:"telegram_bot_token" yaml:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id" yaml:"telegram_chat_id"`
	WebhookURL       string `json:"webhook_url" yaml:"webhook_url"`
	MinLevel         string `json:"min_level" yaml:"min_level"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:         ModeBacktest,
		Symbols:      []string{"AAPL"},
		TickInterval: Duration{5 * time.Minute},
		Account: AccountConfig{
			InitialCapital:  10000,
			TransactionCost: 20,
			RiskFraction:    portfolio.DefaultRiskFraction,
			StopFraction:    portfolio.DefaultStopFraction,
		},
		Strategy: StrategyConfig{Threshold: 0.6},
		Persistence: PersistenceConfig{
			PositionsStore: StoreJSON,
			PositionsPath:  "data/positions.json",
			SQLitePath:     "data/trading.db",
			HistoryStores:  []string{StoreSQLite},
			MaxFailures:    3,
			ResetTimeout:   Duration{30 * time.Second},
			HistoryQueue:   1024,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			SnapshotMaxAge: Duration{10 * time.Minute},
		},
		Market: MarketConfig{
			Session: "NSE",
			Open:    "09:15",
			Close:   "15:30",
		},
		Alerts: AlertConfig{MinLevel: "warning"},
		Server: ServerConfig{MetricsAddr: ":9090"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads .env (if present), the optional file at path and the
// environment, then validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, c); err != nil {
		if jerr := json.Unmarshal(data, c); jerr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = f
		return nil
	}

	str("TRADE_MODE", &c.Mode)
	c.Mode = strings.ToUpper(c.Mode)
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		if err := c.TickInterval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("env TICK_INTERVAL: %w", err)
		}
	}

	if err := num("INITIAL_CAPITAL", &c.Account.InitialCapital); err != nil {
		return err
	}
	if err := num("TRANSACTION_COST", &c.Account.TransactionCost); err != nil {
		return err
	}
	if err := num("CONSENSUS_THRESHOLD", &c.Strategy.Threshold); err != nil {
		return err
	}

	str("POSITIONS_STORE", &c.Persistence.PositionsStore)
	str("POSITIONS_PATH", &c.Persistence.PositionsPath)
	str("SQLITE_PATH", &c.Persistence.SQLitePath)
	if v := os.Getenv("HISTORY_STORE"); v != "" {
		c.Persistence.HistoryStores = splitList(v)
	}

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)

	str("TELEGRAM_BOT_TOKEN", &c.Alerts.TelegramBotToken)
	str("TELEGRAM_CHAT_ID", &c.Alerts.TelegramChatID)
	str("WEBHOOK_URL", &c.Alerts.WebhookURL)

	str("METRICS_ADDR", &c.Server.MetricsAddr)
	str("LOG_LEVEL", &c.Log.Level)
	return nil
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	switch {
	case c.Mode != ModeLive && c.Mode != ModeBacktest:
		return fmt.Errorf("mode must be %s or %s, got %q", ModeLive, ModeBacktest, c.Mode)
	case len(c.Symbols) == 0:
		return errors.New("at least one symbol is required")
	case c.TickInterval.Duration <= 0:
		return errors.New("tick_interval must be positive")
	case c.Account.InitialCapital <= 0:
		return errors.New("account.initial_capital must be positive")
	case c.Account.TransactionCost < 0:
		return errors.New("account.transaction_cost must not be negative")
	case c.Account.RiskFraction <= 0 || c.Account.RiskFraction > 1:
		return errors.New("account.risk_fraction must be in (0, 1]")
	case c.Account.StopFraction <= 0 || c.Account.StopFraction > 1:
		return errors.New("account.stop_fraction must be in (0, 1]")
	case c.Strategy.Threshold <= 0 || c.Strategy.Threshold > 1:
		return errors.New("strategy.threshold must be in (0, 1]")
	case c.Persistence.PositionsStore != StoreJSON && c.Persistence.PositionsStore != StoreSQLite &&
		c.Persistence.PositionsStore != StoreMemory:
		return fmt.Errorf("persistence.positions_store must be %s, %s or %s", StoreJSON, StoreSQLite, StoreMemory)
	case c.Persistence.PositionsStore == StoreJSON && c.Persistence.PositionsPath == "":
		return errors.New("persistence.positions_path is required for the json store")
	case c.Persistence.MaxFailures < 1:
		return errors.New("persistence.max_failures must be at least 1")
	}

	for _, s := range c.Persistence.HistoryStores {
		switch s {
		case StoreSQLite, StoreRedis, StoreMemory:
		default:
			return fmt.Errorf("unknown history store %q", s)
		}
	}
	if c.NeedsSQLite() && c.Persistence.SQLitePath == "" {
		return errors.New("persistence.sqlite_path is required")
	}
	if c.NeedsRedis() && c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if _, err := c.Session(); err != nil {
		return err
	}
	return nil
}

// NeedsSQLite reports whether any configured store uses SQLite.
func (c *Config) NeedsSQLite() bool {
	return c.Persistence.PositionsStore == StoreSQLite || c.HasHistoryStore(StoreSQLite)
}

// NeedsRedis reports whether the trade publisher is enabled. Snapshot
// reads always use Redis in the run command.
func (c *Config) NeedsRedis() bool {
	return c.HasHistoryStore(StoreRedis)
}

// HasHistoryStore reports whether name is a configured history sink.
func (c *Config) HasHistoryStore(name string) bool {
	for _, s := range c.Persistence.HistoryStores {
		if s == name {
			return true
		}
	}
	return false
}

// Live reports whether positions are loaded from the store at startup.
func (c *Config) Live() bool { return c.Mode == ModeLive }

// PortfolioAccount converts the account section into ledger parameters.
func (c *Config) PortfolioAccount() portfolio.AccountConfig {
	return portfolio.AccountConfig{
		InitialCapital:  decimal.NewFromFloat(c.Account.InitialCapital),
		TransactionCost: decimal.NewFromFloat(c.Account.TransactionCost),
		RiskFraction:    decimal.NewFromFloat(c.Account.RiskFraction),
		StopFraction:    decimal.NewFromFloat(c.Account.StopFraction),
	}
}

// Session builds the market session gate.
func (c *Config) Session() (markethours.Session, error) {
	if strings.EqualFold(c.Market.Session, "ALWAYS") {
		return markethours.Always(), nil
	}
	if c.Market.Session != "" && !strings.EqualFold(c.Market.Session, "NSE") {
		return markethours.Session{}, fmt.Errorf("market.session must be NSE or ALWAYS, got %q", c.Market.Session)
	}

	s := markethours.NSE()
	if c.Market.Timezone != "" {
		loc, err := time.LoadLocation(c.Market.Timezone)
		if err != nil {
			return s, fmt.Errorf("market.timezone: %w", err)
		}
		s.Location = loc
	}
	if c.Market.Open != "" {
		h, m, err := markethours.ParseClock(c.Market.Open)
		if err != nil {
			return s, err
		}
		s.OpenHour, s.OpenMinute = h, m
	}
	if c.Market.Close != "" {
		h, m, err := markethours.ParseClock(c.Market.Close)
		if err != nil {
			return s, err
		}
		s.CloseHour, s.CloseMinute = h, m
	}
	if len(c.Market.Holidays) > 0 {
		extra, err := markethours.ParseCalendar(c.Market.Holidays)
		if err != nil {
			return s, err
		}
		for d := range extra {
			s.Holidays[d] = true
		}
	}
	if s.CloseHour*60+s.CloseMinute <= s.OpenHour*60+s.OpenMinute {
		return s, errors.New("market.close must be after market.open")
	}
	return s, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
