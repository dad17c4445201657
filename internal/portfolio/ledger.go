package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"trading-enginev1/internal/breaker"
	"trading-enginev1/internal/id"
	"trading-enginev1/internal/logger"
	"trading-enginev1/internal/model"
)

const opProbe = "probe"

// ErrPositionExists is returned by Open when the symbol already holds a position.
var ErrPositionExists = errors.New("portfolio: position already open")

// Ledger owns the open positions and the capital account.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]model.Position
	account   *Account
	repo      Repository
	recorder  Recorder
	breaker   *breaker.Breaker
	log       *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithRecorder sends every trade record to r.
func WithRecorder(r Recorder) LedgerOption {
	return func(l *Ledger) { l.recorder = r }
}

// WithBreaker replaces the default persistence breaker (3 failures, 30s).
func WithBreaker(b *breaker.Breaker) LedgerOption {
	return func(l *Ledger) { l.breaker = b }
}

// WithLogger sets the ledger logger.
func WithLogger(log *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.log = log }
}

// NewLedger creates an empty ledger over account, persisting to repo.
func NewLedger(account *Account, repo Repository, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		positions: make(map[string]model.Position),
		account:   account,
		repo:      repo,
		breaker:   breaker.New(3, 30*time.Second),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory positions with the repository contents.
// A malformed record fails the whole load.
func (l *Ledger) Load(ctx context.Context) error {
	loaded, err := l.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("portfolio: load positions: %w", err)
	}

	positions := make(map[string]model.Position, len(loaded))
	for sym, pos := range loaded {
		if pos.Symbol == "" {
			pos.Symbol = sym
		}
		switch {
		case pos.Symbol != sym:
			return fmt.Errorf("portfolio: load positions: record %q keyed as %q", pos.Symbol, sym)
		case !pos.Direction.Valid():
			return fmt.Errorf("portfolio: load positions: %s has invalid direction %q", sym, pos.Direction)
		case pos.Shares <= 0 || !validPrice(pos.EntryPrice):
			return fmt.Errorf("portfolio: load positions: %s has shares=%d entry=%v", sym, pos.Shares, pos.EntryPrice)
		}
		if pos.ExtremePrice == 0 {
			pos.ExtremePrice = pos.EntryPrice
		}
		positions[sym] = pos
	}

	l.mu.Lock()
	l.positions = positions
	l.mu.Unlock()

	l.log.Info("positions loaded", "count", len(positions))
	return nil
}

// Open sizes and opens a position. On *InsufficientCapitalError nothing is
// mutated. A *PersistenceError means the position was opened but not saved.
func (l *Ledger) Open(ctx context.Context, symbol string, d model.Direction, price float64, ts time.Time) (model.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked(ctx, symbol, d, price, ts)
}

// Close closes the symbol's position at price with a manual reason.
// A flat symbol yields *NoOpenPositionError.
func (l *Ledger) Close(ctx context.Context, symbol string, price float64, ts time.Time) (model.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked(ctx, symbol, price, ts, model.ReasonManual)
}

// Outcome describes what Apply did for one signal.
type Outcome struct {
	Signal model.Signal
	Before State
	After  State
	Trades []model.TradeRecord
}

// Changed reports whether any trade was made.
func (o Outcome) Changed() bool { return len(o.Trades) > 0 }

// Apply drives the FLAT/LONG/SHORT state machine for one consensus signal.
// BUY while SHORT closes then opens LONG; BUY while FLAT opens LONG; BUY
// while LONG does nothing. SELL mirrors BUY. NONE does nothing.
// Trades that committed are returned even when err is non-nil.
func (l *Ledger) Apply(ctx context.Context, symbol string, sig model.Signal, price float64, ts time.Time) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, held := l.positions[symbol]
	out := Outcome{Signal: sig, Before: stateOf(pos, held)}
	out.After = out.Before

	if !sig.Valid() {
		return out, &InvalidSignalError{Symbol: symbol, Signal: sig}
	}
	target, ok := sig.Target()
	if !ok || (held && pos.Direction == target) {
		return out, nil
	}

	var errs error
	if held {
		rec, err := l.closeLocked(ctx, symbol, price, ts, model.ReasonSignal)
		if err != nil && !IsPersistence(err) {
			return out, err
		}
		out.Trades = append(out.Trades, rec)
		errs = multierr.Append(errs, err)
	}

	rec, err := l.openLocked(ctx, symbol, target, price, ts)
	if err == nil || IsPersistence(err) {
		out.Trades = append(out.Trades, rec)
	}
	errs = multierr.Append(errs, err)

	pos, held = l.positions[symbol]
	out.After = stateOf(pos, held)
	return out, errs
}

// Track updates the trailing stop of an open position at price: the stop
// percentage is recomputed, the extreme price ratcheted, and the position
// closed when the stop is hit. A flat symbol is a no-op.
func (l *Ledger) Track(ctx context.Context, symbol string, price float64, ts time.Time) (*model.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, held := l.positions[symbol]
	if !held {
		return nil, nil
	}
	if !validPrice(price) {
		return nil, &InvalidPriceError{Symbol: symbol, Price: price}
	}

	pct := StopPct(pos.Direction, pos.EntryPrice, price)
	extreme := Ratchet(pos.Direction, pos.ExtremePrice, price)

	if StopHit(pos.Direction, extreme, price, pct) {
		l.log.Info("trailing stop triggered",
			append(logger.Attrs(ctx), "symbol", symbol, "price", price, "extreme", extreme, "stop_pct", pct)...)
		rec, err := l.closeLocked(ctx, symbol, price, ts, model.ReasonTrailingStop)
		return &rec, err
	}

	if extreme == pos.ExtremePrice && pct == pos.TrailingStopPct {
		return nil, nil
	}
	pos.ExtremePrice = extreme
	pos.TrailingStopPct = pct
	l.positions[symbol] = pos
	l.log.Debug("trailing stop updated",
		append(logger.Attrs(ctx), "symbol", symbol, "extreme", extreme, "stop_pct", pct)...)
	return nil, l.persistLocked(ctx, "track", symbol)
}

// Position returns the open position of symbol.
func (l *Ledger) Position(symbol string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// Positions returns all open positions ordered by symbol.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// StateOf returns FLAT, LONG or SHORT for symbol.
func (l *Ledger) StateOf(symbol string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, held := l.positions[symbol]
	return stateOf(pos, held)
}

// Capital returns the available capital.
func (l *Ledger) Capital() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account.Available()
}

// Halted reports whether new entries are being refused.
func (l *Ledger) Halted() bool {
	return l.breaker.CurrentState() != breaker.StateClosed
}

// Flush writes the current position set through the persistence breaker.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked(ctx, "flush", "")
}

func (l *Ledger) openLocked(ctx context.Context, symbol string, d model.Direction, price float64, ts time.Time) (model.TradeRecord, error) {
	if !validPrice(price) {
		return model.TradeRecord{}, &InvalidPriceError{Symbol: symbol, Price: price}
	}
	if !d.Valid() {
		return model.TradeRecord{}, fmt.Errorf("portfolio: invalid direction %q for %s", d, symbol)
	}
	if _, held := l.positions[symbol]; held {
		return model.TradeRecord{}, fmt.Errorf("%w: %s", ErrPositionExists, symbol)
	}
	if err := l.checkHaltLocked(ctx); err != nil {
		return model.TradeRecord{}, err
	}

	shares, cost := l.account.Size(decimal.NewFromFloat(price))
	if !l.account.CanAfford(cost) {
		return model.TradeRecord{}, &InsufficientCapitalError{
			Symbol:    symbol,
			Direction: d,
			Shares:    shares,
			Required:  cost,
			Available: l.account.Available(),
		}
	}

	l.account.debit(cost)
	l.positions[symbol] = model.Position{
		Symbol:          symbol,
		Direction:       d,
		EntryPrice:      price,
		Shares:          shares,
		EntryTime:       ts,
		ExtremePrice:    price,
		TrailingStopPct: StopPct(d, price, price),
	}

	rec := model.TradeRecord{
		ID:           id.New(ts),
		Action:       model.ActionOpen,
		Direction:    d,
		Symbol:       symbol,
		Price:        price,
		Shares:       shares,
		Timestamp:    ts,
		BalanceAfter: l.account.Available().InexactFloat64(),
	}
	l.record(ctx, rec)

	l.log.Info("position opened", append(logger.Attrs(ctx),
		"symbol", symbol, "direction", d, "shares", shares, "price", price,
		"cost", cost.StringFixed(2), "capital", l.account.Available().StringFixed(2))...)

	return rec, l.persistLocked(ctx, "open", symbol)
}

func (l *Ledger) closeLocked(ctx context.Context, symbol string, price float64, ts time.Time, reason string) (model.TradeRecord, error) {
	pos, held := l.positions[symbol]
	if !held {
		l.log.Warn("close on flat symbol", append(logger.Attrs(ctx), "symbol", symbol)...)
		return model.TradeRecord{}, &NoOpenPositionError{Symbol: symbol}
	}
	if !validPrice(price) {
		return model.TradeRecord{}, &InvalidPriceError{Symbol: symbol, Price: price}
	}

	move := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(pos.EntryPrice))
	if pos.Direction == model.Short {
		move = move.Neg()
	}
	net := move.Mul(decimal.NewFromInt(pos.Shares)).Sub(l.account.TransactionCost())

	l.account.credit(net)
	delete(l.positions, symbol)
	if l.account.Available().IsNegative() {
		l.log.Error("capital below zero after close", append(logger.Attrs(ctx),
			"symbol", symbol, "net_pnl", net.StringFixed(2), "capital", l.account.Available().StringFixed(2))...)
	}

	rec := model.TradeRecord{
		ID:           id.New(ts),
		Action:       model.ActionClose,
		Direction:    pos.Direction,
		Symbol:       symbol,
		Price:        price,
		Shares:       pos.Shares,
		Timestamp:    ts,
		BalanceAfter: l.account.Available().InexactFloat64(),
		HoldingDays:  pos.HoldingDays(ts),
		ProfitLoss:   net.InexactFloat64(),
		Reason:       reason,
	}
	l.record(ctx, rec)

	l.log.Info("position closed", append(logger.Attrs(ctx),
		"symbol", symbol, "direction", pos.Direction, "shares", pos.Shares, "price", price,
		"net_pnl", net.StringFixed(2), "reason", reason, "capital", l.account.Available().StringFixed(2))...)

	return rec, l.persistLocked(ctx, "close", symbol)
}

// checkHaltLocked refuses entries while the breaker is not closed. The
// refused entry doubles as a probe: once the reset timeout has passed the
// pending state is flushed and, on success, trading resumes.
func (l *Ledger) checkHaltLocked(ctx context.Context) error {
	if l.breaker.CurrentState() == breaker.StateClosed {
		return nil
	}
	err := l.persistLocked(ctx, opProbe, "")
	switch {
	case err == nil:
		l.log.Info("position store recovered, trading resumed", logger.Attrs(ctx)...)
		return nil
	case errors.Is(err, breaker.ErrOpen):
		l.log.Warn("trading halted, entry refused", append(logger.Attrs(ctx),
			"consecutive", l.breaker.Failures(), "last_error", l.breaker.LastError())...)
		return fmt.Errorf("%w: %v", ErrTradingHalted, breaker.ErrOpen)
	}
	return fmt.Errorf("%w: %v", ErrTradingHalted, err)
}

func (l *Ledger) persistLocked(ctx context.Context, op, symbol string) error {
	snapshot := copyPositions(l.positions)
	err := l.breaker.Execute(func() error {
		return l.repo.SaveAll(ctx, snapshot)
	})
	if err == nil {
		return nil
	}

	pe := &PersistenceError{
		Op:          op,
		Symbol:      symbol,
		Consecutive: l.breaker.Failures(),
		Halted:      l.breaker.CurrentState() != breaker.StateClosed,
		Err:         err,
	}
	if errors.Is(err, breaker.ErrOpen) {
		// Nothing was written. The probe path logs its own refusal.
		if op != opProbe {
			l.log.Warn("position store write skipped, breaker open", append(logger.Attrs(ctx),
				"op", op, "symbol", symbol)...)
		}
		return pe
	}
	l.log.Error("position store write failed", append(logger.Attrs(ctx),
		"op", op, "symbol", symbol, "consecutive", pe.Consecutive, "halted", pe.Halted, "error", err)...)
	return pe
}

func (l *Ledger) record(ctx context.Context, rec model.TradeRecord) {
	if l.recorder != nil {
		l.recorder.Record(ctx, rec)
	}
}
