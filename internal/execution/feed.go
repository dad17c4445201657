package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trading-enginev1/internal/markethours"
	"trading-enginev1/internal/metrics"
)

// Feed polls a SnapshotProvider for every symbol once per interval while
// the market session is open and emits the results as Ticks. Outside the
// session it sleeps until the next open.
type Feed struct {
	provider SnapshotProvider
	session  markethours.Session
	interval time.Duration
	symbols  []string

	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	log     *slog.Logger
	now     func() time.Time
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithFeedMetrics records snapshot errors and the market state.
func WithFeedMetrics(m *metrics.Metrics) FeedOption {
	return func(f *Feed) { f.metrics = m }
}

// WithFeedHealth reports the market state on the health endpoint.
func WithFeedHealth(h *metrics.HealthStatus) FeedOption {
	return func(f *Feed) { f.health = h }
}

// WithFeedLogger sets the logger.
func WithFeedLogger(l *slog.Logger) FeedOption {
	return func(f *Feed) { f.log = l }
}

// WithFeedClock replaces time.Now.
func WithFeedClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

// NewFeed creates a feed. interval <= 0 uses one minute.
func NewFeed(provider SnapshotProvider, session markethours.Session, interval time.Duration, symbols []string, opts ...FeedOption) *Feed {
	if interval <= 0 {
		interval = time.Minute
	}
	f := &Feed{
		provider: provider,
		session:  session,
		interval: interval,
		symbols:  append([]string(nil), symbols...),
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run emits ticks into out until ctx is cancelled, then closes out.
func (f *Feed) Run(ctx context.Context, out chan<- Tick) error {
	defer close(out)

	for {
		now := f.now()
		open := f.session.IsOpen(now)
		f.setMarket(open)

		if !open {
			next := f.session.NextOpen(now)
			wait := next.Sub(now)
			if wait <= 0 {
				wait = f.interval
			}
			f.log.Info("market closed", "status", f.session.Status(now), "next_open", next, "sleep", wait.Truncate(time.Second))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		if err := f.Poll(ctx, now, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !sleep(ctx, f.interval) {
			return nil
		}
	}
}

// Poll reads one snapshot per symbol and sends a tick for each one that
// carries a price. Missing snapshots are logged and counted.
func (f *Feed) Poll(ctx context.Context, now time.Time, out chan<- Tick) error {
	for _, sym := range f.symbols {
		snap, err := f.provider.Snapshot(ctx, sym, now)
		if err != nil {
			f.log.Warn("snapshot unavailable", "symbol", sym, "error", err)
			if f.metrics != nil {
				f.metrics.SnapshotErrors.WithLabelValues("feed").Inc()
			}
			continue
		}
		price, ok := snap.Price()
		if !ok {
			f.log.Warn("snapshot has no price, skipping", "symbol", sym)
			continue
		}

		select {
		case out <- Tick{Symbol: sym, Snapshot: snap, Price: price, Time: now}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *Feed) setMarket(open bool) {
	if f.health != nil {
		f.health.SetMarketOpen(open)
	}
	if f.metrics != nil {
		v := 0.0
		if open {
			v = 1
		}
		f.metrics.MarketState.Set(v)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
