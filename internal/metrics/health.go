package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the engine health.
type HealthStatus struct {
	mu sync.RWMutex

	Mode           string
	LastTickTime   time.Time
	RedisConnected bool
	SQLiteOK       bool
	TradingHalted  bool
	MarketOpen     bool

	// Which dependencies are configured; unconfigured ones never degrade.
	UsesRedis  bool
	UsesSQLite bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(mode string) *HealthStatus {
	return &HealthStatus{
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetTradingHalted(v bool) {
	h.mu.Lock()
	h.TradingHalted = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb goredis.UniversalClient) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.UsesRedis = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.UsesSQLite = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb goredis.UniversalClient, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// HealthReport is the JSON body of the health endpoint.
type HealthReport struct {
	Status          string  `json:"status"`
	Mode            string  `json:"mode"`
	Uptime          string  `json:"uptime"`
	LastTickTime    string  `json:"last_tick_time,omitempty"`
	TickAge         string  `json:"tick_age,omitempty"`
	TradingHalted   bool    `json:"trading_halted"`
	MarketOpen      bool    `json:"market_open"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// Report builds the current health report and its HTTP status code.
// A halted ledger or a failing configured dependency degrades the engine.
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	redisDown := h.UsesRedis && !h.RedisConnected
	sqliteDown := h.UsesSQLite && !h.SQLiteOK
	if h.TradingHalted || redisDown || sqliteDown {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if h.TradingHalted && (redisDown || sqliteDown) {
		status = "unhealthy"
	}

	rep := HealthReport{
		Status:          status,
		Mode:            h.Mode,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		TradingHalted:   h.TradingHalted,
		MarketOpen:      h.MarketOpen,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}
	if !h.LastTickTime.IsZero() {
		rep.LastTickTime = h.LastTickTime.Format(time.RFC3339)
		rep.TickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		rep.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return rep, code
}

// ServeHTTP handles the health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		slog.Warn("health: encode response", "error", err)
	}
}
