package sqlite

import (
	"context"
	"fmt"

	"trading-enginev1/internal/model"
)

// PositionRepo stores the open position set. It implements
// portfolio.Repository.
type PositionRepo struct {
	db *DB
}

// NewPositionRepo returns a position store backed by db.
func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// LoadAll returns every stored position keyed by symbol.
func (r *PositionRepo) LoadAll(ctx context.Context) (map[string]model.Position, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT symbol, direction, entry_price, shares, entry_time, extreme_price, trailing_stop_pct
		 FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load positions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Position)
	for rows.Next() {
		var p model.Position
		var dir string
		var entry int64
		if err := rows.Scan(&p.Symbol, &dir, &p.EntryPrice, &p.Shares, &entry, &p.ExtremePrice, &p.TrailingStopPct); err != nil {
			return nil, fmt.Errorf("sqlite scan position: %w", err)
		}
		p.Direction = model.Direction(dir)
		p.EntryTime = fromNanos(entry)
		out[p.Symbol] = p
	}
	return out, rows.Err()
}

// SaveAll replaces the stored set in one transaction.
func (r *PositionRepo) SaveAll(ctx context.Context, positions map[string]model.Position) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("sqlite clear positions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO positions (symbol, direction, entry_price, shares, entry_time, extreme_price, trailing_stop_pct)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for sym, p := range positions {
		if _, err := stmt.ExecContext(ctx, sym, string(p.Direction), p.EntryPrice, p.Shares,
			toNanos(p.EntryTime), p.ExtremePrice, p.TrailingStopPct); err != nil {
			return fmt.Errorf("sqlite insert position %s: %w", sym, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}
