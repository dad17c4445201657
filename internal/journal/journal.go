// Package journal is the append-only trade history.
//
// History receives every record the ledger emits and fans it out to its
// sinks (SQLite, Redis, the live WebSocket stream). A failing sink is logged,
// counted and alerted but never fails the ledger flow that produced the
// record.
package journal

import (
	"context"

	"trading-enginev1/internal/model"
)

// Sink stores or forwards trade records.
type Sink interface {
	Name() string
	Append(ctx context.Context, rec model.TradeRecord) error
}

// Reader lists stored trade records, newest first. limit <= 0 means all.
type Reader interface {
	List(ctx context.Context, limit int) ([]model.TradeRecord, error)
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]model.TradeRecord, error)
}
