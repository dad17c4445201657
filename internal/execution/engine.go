// Package execution runs the per-tick decision loop: trailing-stop check,
// strategy votes, consensus and the resulting position change.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"trading-enginev1/internal/logger"
	"trading-enginev1/internal/metrics"
	"trading-enginev1/internal/model"
	"trading-enginev1/internal/notification"
	"trading-enginev1/internal/portfolio"
	"trading-enginev1/internal/strategy"
)

// Skip reasons reported in TickResult.Skipped.
const (
	SkipInsufficientCapital = "insufficient_capital"
	SkipHalted              = "halted"
)

// Tick is one evaluation request.
type Tick struct {
	Symbol   string
	Snapshot model.IndicatorSnapshot
	Price    float64
	Time     time.Time
}

// TickResult describes what one tick did.
type TickResult struct {
	Symbol  string
	TickID  string
	Price   float64
	Time    time.Time
	Votes   map[string]model.Vote
	Signal  model.Signal
	Missing []*strategy.MissingIndicatorError

	// StopExit is the close made by the trailing stop before voting.
	StopExit *model.TradeRecord
	Outcome  portfolio.Outcome
	Skipped  string
}

// Trades returns every trade the tick made, in order.
func (r TickResult) Trades() []model.TradeRecord {
	var out []model.TradeRecord
	if r.StopExit != nil {
		out = append(out, *r.StopExit)
	}
	return append(out, r.Outcome.Trades...)
}

// Engine drives the ledger from indicator snapshots.
type Engine struct {
	ledger    *portfolio.Ledger
	evaluator *strategy.Evaluator
	threshold float64
	symbols   []string

	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	alerts  notification.Notifier
	log     *slog.Logger
	closers []io.Closer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the default five-rule evaluator.
func WithEvaluator(ev *strategy.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithThreshold sets the consensus threshold.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithSymbols sets the symbols evaluated by RunOnce.
func WithSymbols(symbols ...string) Option {
	return func(e *Engine) { e.symbols = append([]string(nil), symbols...) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithHealth(h *metrics.HealthStatus) Option {
	return func(e *Engine) { e.health = h }
}

func WithNotifier(n notification.Notifier) Option {
	return func(e *Engine) { e.alerts = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClosers registers resources released by Close after the final flush.
func WithClosers(c ...io.Closer) Option {
	return func(e *Engine) { e.closers = append(e.closers, c...) }
}

// NewEngine creates an engine acting on ledger.
func NewEngine(ledger *portfolio.Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger:    ledger,
		threshold: strategy.DefaultThreshold,
		log:       slog.Default().With("component", "engine"),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluator == nil {
		e.evaluator = strategy.NewEvaluator()
	}
	return e
}

// Ledger returns the ledger the engine mutates.
func (e *Engine) Ledger() *portfolio.Ledger { return e.ledger }

// Symbols returns the symbols evaluated by RunOnce.
func (e *Engine) Symbols() []string { return append([]string(nil), e.symbols...) }

// OnTick evaluates one snapshot for symbol and applies the consensus
// signal at price. An open position is first checked against its trailing
// stop. Missing indicators and unaffordable entries end the tick normally;
// persistence failures, a trading halt and invalid prices are returned.
func (e *Engine) OnTick(ctx context.Context, symbol string, snap model.IndicatorSnapshot, price float64, ts time.Time) (TickResult, error) {
	unlock := e.lock(symbol)
	defer unlock()

	tickID := logger.NewTickID(symbol, ts)
	ctx = logger.WithTickID(ctx, tickID)
	start := time.Now()

	res := TickResult{Symbol: symbol, TickID: tickID, Price: price, Time: ts}
	var errs error

	stop, err := e.ledger.Track(ctx, symbol, price, ts)
	if stop != nil {
		res.StopExit = stop
		e.alert(ctx, notification.Alert{
			Level:   notification.AlertInfo,
			Title:   "Trailing stop",
			Message: fmt.Sprintf("%s %d closed at %.2f, net %.2f", stop.Direction, stop.Shares, stop.Price, stop.ProfitLoss),
			Symbol:  symbol,
		})
	}
	if err != nil {
		if !portfolio.IsPersistence(err) {
			e.finish(ctx, &res, start, err)
			return res, err
		}
		errs = multierr.Append(errs, err)
	}

	ev := e.evaluator.Evaluate(snap)
	res.Votes = ev.Votes
	res.Missing = ev.Missing()
	e.reportVotes(ctx, symbol, ev)

	res.Signal = strategy.AggregateThreshold(ev.Votes, e.threshold)
	if e.metrics != nil {
		e.metrics.SignalsTotal.WithLabelValues(string(res.Signal)).Inc()
	}
	e.log.Info("consensus", append(logger.Attrs(ctx),
		"symbol", symbol, "signal", res.Signal, "price", price, "votes", ev.Votes)...)

	err = e.apply(ctx, symbol, res.Signal, price, ts, &res)
	errs = multierr.Append(errs, err)

	e.finish(ctx, &res, start, errs)
	return res, errs
}

// ApplySignal applies an externally produced signal, bypassing the
// strategies. Signals other than BUY, SELL and NONE are rejected with
// *portfolio.InvalidSignalError.
func (e *Engine) ApplySignal(ctx context.Context, symbol string, sig model.Signal, price float64, ts time.Time) (TickResult, error) {
	unlock := e.lock(symbol)
	defer unlock()

	tickID := logger.NewTickID(symbol, ts)
	ctx = logger.WithTickID(ctx, tickID)
	start := time.Now()

	res := TickResult{Symbol: symbol, TickID: tickID, Price: price, Time: ts, Signal: sig}
	err := e.apply(ctx, symbol, sig, price, ts, &res)
	e.finish(ctx, &res, start, err)
	return res, err
}

// RunOnce evaluates every configured symbol once. The price of a symbol is
// taken from prices, falling back to the price carried by its snapshot.
// Symbols without a snapshot or a price are skipped. An invalid signal
// aborts the batch; other errors are collected.
func (e *Engine) RunOnce(ctx context.Context, provider SnapshotProvider, prices map[string]float64, ts time.Time) ([]TickResult, error) {
	symbols := e.symbols
	if len(symbols) == 0 {
		for sym := range prices {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
	}

	var results []TickResult
	var errs error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}

		snap, err := provider.Snapshot(ctx, sym, ts)
		if err != nil {
			e.log.Warn("snapshot unavailable", "symbol", sym, "error", err)
			if e.metrics != nil {
				e.metrics.SnapshotErrors.WithLabelValues("provider").Inc()
			}
			continue
		}

		price, ok := prices[sym]
		if !ok {
			price, ok = snap.Price()
		}
		if !ok {
			e.log.Warn("no price for symbol, skipping", "symbol", sym)
			continue
		}

		res, err := e.OnTick(ctx, sym, snap, price, ts)
		results = append(results, res)
		if err != nil {
			var ise *portfolio.InvalidSignalError
			if errors.As(err, &ise) {
				return results, err
			}
			errs = multierr.Append(errs, err)
		}
	}
	return results, errs
}

// Run consumes ticks until ctx is cancelled or ticks is closed. Tick
// errors are logged; an invalid signal stops the loop and is returned.
func (e *Engine) Run(ctx context.Context, ticks <-chan Tick) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			_, err := e.OnTick(ctx, t.Symbol, t.Snapshot, t.Price, t.Time)
			if err == nil {
				continue
			}
			var ise *portfolio.InvalidSignalError
			if errors.As(err, &ise) {
				return err
			}
			e.log.Error("tick failed", "symbol", t.Symbol, "error", err)
		}
	}
}

// Close flushes the position store and releases registered resources.
func (e *Engine) Close(ctx context.Context) error {
	err := e.ledger.Flush(ctx)
	for _, c := range e.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (e *Engine) apply(ctx context.Context, symbol string, sig model.Signal, price float64, ts time.Time, res *TickResult) error {
	out, err := e.ledger.Apply(ctx, symbol, sig, price, ts)
	res.Outcome = out
	if err == nil {
		return nil
	}

	var (
		ise *portfolio.InvalidSignalError
		ice *portfolio.InsufficientCapitalError
		pe  *portfolio.PersistenceError
	)
	switch {
	case errors.As(err, &ise):
		e.log.Error("invalid signal", append(logger.Attrs(ctx), "symbol", symbol, "signal", string(sig))...)
		return err

	case errors.Is(err, portfolio.ErrTradingHalted):
		res.Skipped = SkipHalted
		e.skip(SkipHalted)
		e.alert(ctx, notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "Trading halted",
			Message: fmt.Sprintf("%s entry refused: %v", sig, err),
			Symbol:  symbol,
		})
		e.log.Error("entry refused, trading halted", append(logger.Attrs(ctx),
			"symbol", symbol, "signal", string(sig), "error", err)...)
		return err

	case errors.As(err, &ice):
		res.Skipped = SkipInsufficientCapital
		e.skip(SkipInsufficientCapital)
		e.log.Warn("entry skipped", append(logger.Attrs(ctx),
			"symbol", symbol, "reason", SkipInsufficientCapital, "error", err)...)
		e.alert(ctx, notification.Alert{
			Level:   notification.AlertWarning,
			Title:   "Insufficient capital",
			Message: fmt.Sprintf("cannot open %s: required %s, available %s", ice.Direction, ice.Required.StringFixed(2), ice.Available.StringFixed(2)),
			Symbol:  symbol,
		})
		// Only a persistence failure of a preceding close is surfaced.
		var rest error
		for _, one := range multierr.Errors(err) {
			if portfolio.IsPersistence(one) {
				rest = multierr.Append(rest, one)
			}
		}
		if rest != nil {
			e.persistenceAlert(ctx, symbol, rest)
		}
		return rest

	case errors.As(err, &pe):
		e.persistenceAlert(ctx, symbol, err)
		return err
	}
	return err
}

func (e *Engine) persistenceAlert(ctx context.Context, symbol string, err error) {
	if e.metrics != nil {
		e.metrics.PersistenceFailures.Inc()
	}
	e.alert(ctx, notification.Alert{
		Level:   notification.AlertCritical,
		Title:   "Position store failure",
		Message: err.Error(),
		Symbol:  symbol,
	})
}

func (e *Engine) reportVotes(ctx context.Context, symbol string, ev strategy.Evaluation) {
	if e.metrics != nil {
		for name, v := range ev.Votes {
			e.metrics.VotesTotal.WithLabelValues(name, string(v)).Inc()
		}
	}

	missing := ev.Missing()
	if len(missing) == 0 {
		return
	}
	names := make([]string, 0, len(missing))
	for _, m := range missing {
		names = append(names, m.Strategy)
		if e.metrics != nil {
			e.metrics.MissingIndicators.WithLabelValues(m.Strategy).Inc()
		}
		e.log.Warn("missing indicator", append(logger.Attrs(ctx),
			"symbol", symbol, "strategy", m.Strategy, "family", m.Family, "field", m.Field)...)
	}
	e.alert(ctx, notification.Alert{
		Level:   notification.AlertWarning,
		Title:   "Missing indicators",
		Message: fmt.Sprintf("%d rule(s) voted HOLD for lack of data: %v", len(names), names),
		Symbol:  symbol,
	})
}

func (e *Engine) finish(ctx context.Context, res *TickResult, start time.Time, err error) {
	if e.health != nil {
		e.health.SetLastTickTime(res.Time)
		e.health.SetTradingHalted(e.ledger.Halted())
	}
	if closedAny(res.Trades()) {
		if capital := e.ledger.Capital(); capital.IsNegative() {
			e.alert(ctx, notification.Alert{
				Level:   notification.AlertCritical,
				Title:   "Negative capital",
				Message: fmt.Sprintf("available capital %s after close, new entries refused", capital.StringFixed(2)),
				Symbol:  res.Symbol,
			})
		}
	}
	if e.metrics == nil {
		return
	}

	e.metrics.TicksTotal.WithLabelValues(res.Symbol).Inc()
	e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	for _, t := range res.Trades() {
		e.metrics.TradesTotal.WithLabelValues(string(t.Action), string(t.Direction), t.Reason).Inc()
	}
	e.metrics.Capital.Set(e.ledger.Capital().InexactFloat64())
	e.metrics.OpenPositions.Set(float64(len(e.ledger.Positions())))
	if e.ledger.Halted() {
		e.metrics.TradingHalted.Set(1)
	} else {
		e.metrics.TradingHalted.Set(0)
	}
	if err != nil {
		e.metrics.TickErrors.WithLabelValues(errorKind(err)).Inc()
	}
}

func closedAny(trades []model.TradeRecord) bool {
	for _, t := range trades {
		if t.Action == model.ActionClose {
			return true
		}
	}
	return false
}

func (e *Engine) skip(reason string) {
	if e.metrics != nil {
		e.metrics.SkippedTrades.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) alert(ctx context.Context, a notification.Alert) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Send(ctx, a); err != nil {
		e.log.Warn("alert delivery failed", append(logger.Attrs(ctx), "title", a.Title, "error", err)...)
		if e.metrics != nil {
			e.metrics.AlertFailures.Inc()
		}
	}
}

func (e *Engine) lock(symbol string) func() {
	e.mu.Lock()
	m, ok := e.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		e.locks[symbol] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func errorKind(err error) string {
	var (
		ise *portfolio.InvalidSignalError
		ipe *portfolio.InvalidPriceError
	)
	switch {
	case errors.As(err, &ise):
		return "invalid_signal"
	case errors.Is(err, portfolio.ErrTradingHalted):
		return "halted"
	case portfolio.IsPersistence(err):
		return "persistence"
	case errors.As(err, &ipe):
		return "invalid_price"
	}
	return "other"
}
