package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-enginev1/internal/api"
	"trading-enginev1/internal/breaker"
	"trading-enginev1/internal/config"
	"trading-enginev1/internal/execution"
	"trading-enginev1/internal/gateway"
	"trading-enginev1/internal/journal"
	"trading-enginev1/internal/metrics"
	"trading-enginev1/internal/notification"
	"trading-enginev1/internal/portfolio"
	"trading-enginev1/internal/store/file"
	redisstore "trading-enginev1/internal/store/redis"
	sqlitestore "trading-enginev1/internal/store/sqlite"
	"trading-enginev1/internal/strategy"
)

const (
	replayBufferSize = 4096
	recentTrades     = 1000
)

// appOptions overrides collaborators, mainly for tests.
type appOptions struct {
	registry *prometheus.Registry
	provider execution.SnapshotProvider
	redis    *goredis.Client
}

// app is the wired engine process.
type app struct {
	cfg *config.Config
	log *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus
	notifier notification.Notifier

	db  *sqlitestore.DB
	rdb *goredis.Client

	provider execution.SnapshotProvider
	history  *journal.History
	hub      *gateway.Hub
	ledger   *portfolio.Ledger
	engine   *execution.Engine
}

// newApp builds every component the configuration asks for. On error the
// resources opened so far are released.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, log: log, registry: opts.registry, provider: opts.provider, rdb: opts.redis}
	var closers []io.Closer
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
		}
	}()

	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.metrics = metrics.NewMetrics(a.registry)
	a.health = metrics.NewHealthStatus(cfg.Mode)
	a.notifier = buildNotifier(cfg.Alerts, log)

	if cfg.NeedsSQLite() {
		if a.db, err = openSQLite(cfg.Persistence.SQLitePath); err != nil {
			return nil, err
		}
		closers = append(closers, a.db)
		a.health.UsesSQLite = true
		a.health.SQLiteOK = true
	}

	if a.rdb == nil && (a.provider == nil || cfg.NeedsRedis()) {
		if a.rdb, err = redisstore.Connect(ctx, redisConfig(cfg)); err != nil {
			return nil, err
		}
		closers = append(closers, a.rdb)
	}
	if a.rdb != nil {
		a.health.UsesRedis = true
		a.health.RedisConnected = true
	}

	if a.provider == nil {
		a.provider = redisstore.NewSnapshotReader(a.rdb,
			redisstore.WithMaxAge(cfg.Redis.SnapshotMaxAge.Duration),
			redisstore.WithReadBreaker(a.newBreaker("snapshots", 5, cfg.Persistence.ResetTimeout.Duration)))
	}

	a.hub = gateway.NewHub(replayBufferSize)
	if a.history, err = a.buildHistory(); err != nil {
		return nil, err
	}

	repo, err := a.positionRepo()
	if err != nil {
		return nil, err
	}
	acct, err := portfolio.NewAccount(cfg.PortfolioAccount())
	if err != nil {
		return nil, err
	}
	a.ledger = portfolio.NewLedger(acct, repo,
		portfolio.WithRecorder(a.history),
		portfolio.WithBreaker(a.newBreaker("positions", cfg.Persistence.MaxFailures, cfg.Persistence.ResetTimeout.Duration)),
		portfolio.WithLogger(log.With("component", "ledger")),
	)
	if cfg.Live() {
		if err := a.ledger.Load(ctx); err != nil {
			return nil, fmt.Errorf("load positions: %w", err)
		}
		log.Info("positions loaded", "open", len(a.ledger.Positions()))
	}
	a.metrics.Capital.Set(a.ledger.Capital().InexactFloat64())
	a.metrics.OpenPositions.Set(float64(len(a.ledger.Positions())))

	a.engine = execution.NewEngine(a.ledger,
		execution.WithEvaluator(strategy.NewEvaluator(strategy.Defaults()...)),
		execution.WithThreshold(cfg.Strategy.Threshold),
		execution.WithSymbols(cfg.Symbols...),
		execution.WithMetrics(a.metrics),
		execution.WithHealth(a.health),
		execution.WithNotifier(a.notifier),
		execution.WithLogger(log.With("component", "engine")),
		execution.WithClosers(closers...),
	)
	return a, nil
}

// newBreaker returns a breaker whose state is exported as a metric.
func (a *app) newBreaker(name string, maxFailures int, reset time.Duration) *breaker.Breaker {
	cb := breaker.New(maxFailures, reset)
	gauge := a.metrics.BreakerState.WithLabelValues(name)
	gauge.Set(float64(breaker.StateClosed))
	log := a.log
	cb.OnStateChange = func(from, to breaker.State) {
		gauge.Set(float64(to))
		log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	}
	return cb
}

// buildHistory wires the configured history sinks. The stream hub always
// receives trades; the SQLite store, when configured, answers queries.
func (a *app) buildHistory() (*journal.History, error) {
	opts := []journal.Option{
		journal.WithRecent(recentTrades),
		journal.WithMetrics(a.metrics),
		journal.WithNotifier(a.notifier),
		journal.WithLogger(a.log.With("component", "history")),
		journal.WithSinks(a.hub),
	}
	if n := a.cfg.Persistence.HistoryQueue; n > 0 {
		opts = append(opts, journal.WithQueue(n))
	}

	for _, name := range a.cfg.Persistence.HistoryStores {
		switch name {
		case config.StoreSQLite:
			trades := sqlitestore.NewTradeStore(a.db)
			opts = append(opts, journal.WithSinks(trades), journal.WithReader(trades))
		case config.StoreRedis:
			pub := redisstore.NewPublisher(a.rdb, a.newBreaker("publisher", 5, a.cfg.Persistence.ResetTimeout.Duration), 0)
			pub.OnDrop = func() { a.metrics.HistoryOverflow.Inc() }
			opts = append(opts, journal.WithSinks(pub))
		case config.StoreMemory:
			// The in-memory buffer is always present.
		default:
			return nil, fmt.Errorf("unknown history store %q", name)
		}
	}
	return journal.New(opts...), nil
}

func (a *app) positionRepo() (portfolio.Repository, error) {
	return openPositionRepo(a.cfg, a.db)
}

func openPositionRepo(cfg *config.Config, db *sqlitestore.DB) (portfolio.Repository, error) {
	switch cfg.Persistence.PositionsStore {
	case config.StoreJSON:
		return file.NewPositionRepo(cfg.Persistence.PositionsPath), nil
	case config.StoreSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite position store requires a database")
		}
		return sqlitestore.NewPositionRepo(db), nil
	case config.StoreMemory:
		return portfolio.NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown position store %q", cfg.Persistence.PositionsStore)
}

// router exposes the engine's HTTP surface.
func (a *app) router() http.Handler {
	return api.NewRouter(api.Deps{
		Health:    a.health,
		Metrics:   promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Stream:    a.hub,
		Replay:    a.hub,
		Positions: api.LedgerPositions(a.ledger),
		Account:   a.ledger,
		History:   a.history,
	})
}

// redisClient returns the connection as a UniversalClient, nil when Redis
// is not in use.
func (a *app) redisClient() goredis.UniversalClient {
	if a.rdb == nil {
		return nil
	}
	return a.rdb
}

func (a *app) sqlDB() *sql.DB {
	if a.db == nil {
		return nil
	}
	return a.db.SQL()
}

func buildNotifier(cfg config.AlertConfig, log *slog.Logger) notification.Notifier {
	var remote notification.Multi
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		remote = append(remote, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		remote = append(remote, notification.NewWebhookNotifier(cfg.WebhookURL))
	}

	local := notification.NewLogNotifier(log.With("component", "alerts"))
	if len(remote) == 0 {
		return local
	}
	return notification.Multi{
		local,
		notification.LevelFilter{Min: notification.AlertLevel(strings.ToUpper(cfg.MinLevel)), Next: remote},
	}
}

func openSQLite(path string) (*sqlitestore.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return sqlitestore.Open(path)
}

func redisConfig(cfg *config.Config) redisstore.Config {
	return redisstore.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
}

// shutdown flushes the history and closes the engine. It is safe to call
// once after the engine stops ticking.
func (a *app) shutdown(ctx context.Context) error {
	a.history.Flush(ctx)
	return a.engine.Close(ctx)
}
