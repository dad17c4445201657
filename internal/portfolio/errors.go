package portfolio

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-enginev1/internal/model"
)

// ErrTradingHalted is returned by entry operations while persistence is
// failing. Closing positions stays allowed.
var ErrTradingHalted = errors.New("portfolio: trading halted after repeated persistence failures")

// InsufficientCapitalError reports an entry the account cannot afford.
// Nothing was mutated.
type InsufficientCapitalError struct {
	Symbol    string
	Direction model.Direction
	Shares    int64
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("portfolio: insufficient capital to open %s %s: required %s, available %s",
		e.Direction, e.Symbol, e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// NoOpenPositionError reports a close on a flat symbol.
type NoOpenPositionError struct {
	Symbol string
}

func (e *NoOpenPositionError) Error() string {
	return fmt.Sprintf("portfolio: no open position for %s", e.Symbol)
}

// InvalidSignalError reports a signal outside BUY, SELL and NONE reaching
// the ledger. It is a caller bug.
type InvalidSignalError struct {
	Symbol string
	Signal model.Signal
}

func (e *InvalidSignalError) Error() string {
	return fmt.Sprintf("portfolio: invalid signal %q for %s", string(e.Signal), e.Symbol)
}

// InvalidPriceError reports a non-positive or non-finite trade price.
type InvalidPriceError struct {
	Symbol string
	Price  float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("portfolio: invalid price %v for %s", e.Price, e.Symbol)
}

// PersistenceError reports a failed durable-store write. The in-memory
// mutation it follows has been committed and stays authoritative.
type PersistenceError struct {
	Op          string
	Symbol      string
	Consecutive int  // consecutive failures including this one
	Halted      bool // new entries are being refused
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("portfolio: persist after %s %s (failure %d): %v", e.Op, e.Symbol, e.Consecutive, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err carries a PersistenceError, meaning the
// ledger mutation itself succeeded.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
