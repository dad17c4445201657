package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"trading-enginev1/internal/api"
	"trading-enginev1/internal/config"
	"trading-enginev1/internal/gateway"
	"trading-enginev1/internal/metrics"
	redisstore "trading-enginev1/internal/store/redis"
	sqlitestore "trading-enginev1/internal/store/sqlite"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve positions, trade history and the live trade stream of an engine running elsewhere",
		Long: `Serve exposes the stored positions and trade history read-only and relays
the trade events an engine publishes on Redis to WebSocket clients.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.MetricsAddr
			}
			session, err := cfg.Session()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rdb, err := redisstore.Connect(ctx, redisConfig(cfg))
			if err != nil {
				return err
			}
			defer rdb.Close()

			var db *sqlitestore.DB
			var sqlDB *sql.DB
			if cfg.NeedsSQLite() {
				if db, err = openSQLite(cfg.Persistence.SQLitePath); err != nil {
					return err
				}
				defer db.Close()
				sqlDB = db.SQL()
			}
			repo, err := openPositionRepo(cfg, db)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			health := metrics.NewHealthStatus(cfg.Mode)
			health.UsesRedis, health.RedisConnected = true, true
			health.UsesSQLite, health.SQLiteOK = db != nil, db != nil

			hub := gateway.NewHub(replayBufferSize)
			deps := api.Deps{
				Health:    health,
				Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				Stream:    hub,
				Replay:    hub,
				Positions: api.StoredPositions(repo),
			}
			if db != nil && cfg.HasHistoryStore(config.StoreSQLite) {
				deps.History = sqlitestore.NewTradeStore(db)
			}

			go hub.RunRedis(ctx, rdb, redisstore.TradeChannel)
			hub.StartStatusBroadcast(ctx, session, statusInterval, time.Now())
			health.StartLivenessChecker(ctx, rdb, sqlDB, livenessInterval)

			srv := metrics.NewServer(addr, api.NewRouter(deps))
			srv.Start()
			log.Info("gateway started", "addr", addr, "channel", redisstore.TradeChannel)

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.metrics_addr)")
	return cmd
}
