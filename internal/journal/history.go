package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trading-enginev1/internal/logger"
	"trading-enginev1/internal/metrics"
	"trading-enginev1/internal/model"
	"trading-enginev1/internal/notification"
	"trading-enginev1/internal/ringbuf"
)

const defaultFlushDelay = 200 * time.Millisecond

// History is the trade history recorder.
//
// Records always land in an in-memory buffer first so readers see them
// immediately. Durable sinks are written either inline or, with WithQueue,
// by a background writer (Run) fed through a lock-free ring.
type History struct {
	recent  *Memory
	sinks   []Sink
	reader  Reader
	metrics *metrics.Metrics
	alerts  notification.Notifier
	log     *slog.Logger

	queue  *ringbuf.Ring[model.TradeRecord]
	pushMu sync.Mutex // one producer at a time
	popMu  sync.Mutex // one consumer at a time
	wake   chan struct{}
}

// Option configures a History.
type Option func(*History)

// WithSinks adds durable or forwarding sinks.
func WithSinks(sinks ...Sink) Option {
	return func(h *History) { h.sinks = append(h.sinks, sinks...) }
}

// WithReader sets the store List and ListBySymbol read from. Without one
// the in-memory buffer answers.
func WithReader(r Reader) Option {
	return func(h *History) { h.reader = r }
}

// WithMetrics enables failure counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *History) { h.metrics = m }
}

// WithNotifier sends an alert for every sink failure.
func WithNotifier(n notification.Notifier) Option {
	return func(h *History) { h.alerts = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *History) { h.log = l }
}

// WithQueue hands sink writes to the background writer through a ring of
// the given capacity. Run must be started.
func WithQueue(capacity int) Option {
	return func(h *History) { h.queue = ringbuf.New[model.TradeRecord](capacity) }
}

// WithRecent sets the capacity of the in-memory buffer.
func WithRecent(capacity int) Option {
	return func(h *History) { h.recent = NewMemory(capacity) }
}

// New creates a History.
func New(opts ...Option) *History {
	h := &History{
		recent: NewMemory(0),
		log:    slog.Default(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Record appends rec. It never fails: sink errors are logged, counted and
// alerted. When the queue is full, pending records are drained inline first
// so sinks still see records in order.
func (h *History) Record(ctx context.Context, rec model.TradeRecord) {
	_ = h.recent.Append(ctx, rec)

	if h.queue != nil {
		h.pushMu.Lock()
		ok := h.queue.Push(rec)
		h.pushMu.Unlock()
		if ok {
			select {
			case h.wake <- struct{}{}:
			default:
			}
			return
		}
		if h.metrics != nil {
			h.metrics.HistoryOverflow.Inc()
		}
		h.log.Warn("history queue full, writing inline", logger.Attrs(ctx)...)
		h.Flush(ctx)
	}
	h.write(ctx, rec)
}

// Run drains the queue until ctx is cancelled, then performs a final drain.
// Without a queue it returns immediately.
func (h *History) Run(ctx context.Context) {
	if h.queue == nil {
		return
	}
	ticker := time.NewTicker(defaultFlushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Flush(context.WithoutCancel(ctx))
			return
		case <-h.wake:
			h.Flush(ctx)
		case <-ticker.C:
			h.Flush(ctx)
		}
	}
}

// Flush writes every queued record to the sinks.
func (h *History) Flush(ctx context.Context) {
	if h.queue == nil {
		return
	}
	h.popMu.Lock()
	defer h.popMu.Unlock()
	write := func(rec model.TradeRecord) { h.write(ctx, rec) }
	for h.queue.Drain(write) > 0 {
	}
}

// Pending returns the number of queued records not yet written.
func (h *History) Pending() int {
	if h.queue == nil {
		return 0
	}
	return h.queue.Len()
}

// List returns up to limit records, newest first.
func (h *History) List(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if h.reader != nil {
		return h.reader.List(ctx, limit)
	}
	return h.recent.List(ctx, limit)
}

// ListBySymbol returns up to limit records of symbol, newest first.
func (h *History) ListBySymbol(ctx context.Context, symbol string, limit int) ([]model.TradeRecord, error) {
	if h.reader != nil {
		return h.reader.ListBySymbol(ctx, symbol, limit)
	}
	return h.recent.ListBySymbol(ctx, symbol, limit)
}

// Recent returns up to limit records from the in-memory buffer.
func (h *History) Recent(limit int) []model.TradeRecord {
	recs, _ := h.recent.List(context.Background(), limit)
	return recs
}

func (h *History) write(ctx context.Context, rec model.TradeRecord) {
	for _, s := range h.sinks {
		err := s.Append(ctx, rec)
		if err == nil {
			continue
		}
		h.log.Error("trade history write failed", append(logger.Attrs(ctx),
			"sink", s.Name(), "trade_id", rec.ID, "symbol", rec.Symbol, "action", rec.Action, "error", err)...)
		if h.metrics != nil {
			h.metrics.HistoryFailures.WithLabelValues(s.Name()).Inc()
		}
		h.alert(ctx, notification.Alert{
			Level:   notification.AlertWarning,
			Title:   "Trade history write failed",
			Message: s.Name() + ": " + string(rec.Action) + " " + rec.ID + ": " + err.Error(),
			Symbol:  rec.Symbol,
		})
	}
}

func (h *History) alert(ctx context.Context, a notification.Alert) {
	if h.alerts == nil {
		return
	}
	if err := h.alerts.Send(ctx, a); err != nil {
		h.log.Warn("alert delivery failed", "title", a.Title, "error", err)
		if h.metrics != nil {
			h.metrics.AlertFailures.Inc()
		}
	}
}
