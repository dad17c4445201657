// Package redis connects the engine to Redis: indicator snapshots are read
// from plain keys and trade events are fanned out over a stream and a
// pub/sub channel.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// SnapshotKeyPrefix prefixes the per-symbol snapshot key, e.g. ind:snapshot:AAPL.
	SnapshotKeyPrefix = "ind:snapshot:"
	// TradeStream is the capped stream holding every trade event.
	TradeStream = "trades:history"
	// TradeChannel carries live trade events for dashboards.
	TradeChannel = "pub:trades"

	tradeStreamMaxLen = 10000
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

// SnapshotKey returns the key holding symbol's latest snapshot.
func SnapshotKey(symbol string) string {
	return SnapshotKeyPrefix + symbol
}
