package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"trading-enginev1/internal/model"
)

// TradeStore is the append-only trade history table. It implements
// journal.Sink and journal.Reader.
type TradeStore struct {
	db *DB
}

// NewTradeStore returns a trade store backed by db.
func NewTradeStore(db *DB) *TradeStore {
	return &TradeStore{db: db}
}

func (s *TradeStore) Name() string { return "sqlite" }

// Append inserts rec. Re-appending an id already stored is ignored.
func (s *TradeStore) Append(ctx context.Context, rec model.TradeRecord) error {
	_, err := s.db.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO trades
		 (id, action, direction, symbol, price, shares, ts, balance_after, holding_days, profit_loss, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Action),
		string(rec.Direction),
		rec.Symbol,
		rec.Price,
		rec.Shares,
		toNanos(rec.Timestamp),
		rec.BalanceAfter,
		rec.HoldingDays,
		rec.ProfitLoss,
		rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("sqlite insert trade %s: %w", rec.ID, err)
	}
	return nil
}

const tradeColumns = `id, action, direction, symbol, price, shares, ts, balance_after, holding_days, profit_loss, reason`

// List returns the last limit trades, newest first. limit <= 0 returns all.
func (s *TradeStore) List(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY seq DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite list trades: %w", err)
	}
	return scanTrades(rows)
}

// ListBySymbol returns the last limit trades of symbol, newest first.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]model.TradeRecord, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE symbol = ? ORDER BY seq DESC LIMIT ?`, symbol, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite list trades for %s: %w", symbol, err)
	}
	return scanTrades(rows)
}

// Count returns the number of stored trades.
func (s *TradeStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&n)
	return n, err
}

// SQLite treats a negative LIMIT as no limit.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func scanTrades(rows *sql.Rows) ([]model.TradeRecord, error) {
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var r model.TradeRecord
		var action, dir string
		var ts int64
		if err := rows.Scan(&r.ID, &action, &dir, &r.Symbol, &r.Price, &r.Shares, &ts,
			&r.BalanceAfter, &r.HoldingDays, &r.ProfitLoss, &r.Reason); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		r.Action = model.Action(action)
		r.Direction = model.Direction(dir)
		r.Timestamp = fromNanos(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
