package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/multierr"

	"trading-enginev1/internal/breaker"
	"trading-enginev1/internal/model"
)

// StreamPublisher is the subset of the Redis client used to fan out trades.
type StreamPublisher interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// Publisher appends trade records to TradeStream and publishes them on
// TradeChannel. It implements journal.Sink.
//
// While the breaker is open records are buffered locally and replayed
// after the next successful publish. When the buffer is full the oldest
// record is dropped.
type Publisher struct {
	client StreamPublisher
	cb     *breaker.Breaker
	log    *slog.Logger

	mu     sync.Mutex
	buffer []model.TradeRecord
	maxBuf int

	// OnDrop, if set, is called when a buffered record is discarded.
	OnDrop func()
}

// NewPublisher returns a publisher guarded by cb. maxBuffer <= 0 uses 10000.
func NewPublisher(client StreamPublisher, cb *breaker.Breaker, maxBuffer int) *Publisher {
	if maxBuffer <= 0 {
		maxBuffer = 10000
	}
	if cb == nil {
		cb = breaker.New(5, 0)
	}
	return &Publisher{
		client: client,
		cb:     cb,
		log:    slog.Default().With("component", "redis-publisher"),
		buffer: make([]model.TradeRecord, 0, 64),
		maxBuf: maxBuffer,
	}
}

func (p *Publisher) Name() string { return "redis" }

// Append publishes rec. A record refused by an open breaker is buffered
// and Append returns nil.
func (p *Publisher) Append(ctx context.Context, rec model.TradeRecord) error {
	err := p.cb.Execute(func() error { return p.publish(ctx, rec) })
	if errors.Is(err, breaker.ErrOpen) {
		p.bufferRecord(rec)
		return nil
	}
	if err != nil {
		return err
	}
	p.flush(ctx)
	return nil
}

// Pending returns the number of buffered records.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *Publisher) publish(ctx context.Context, rec model.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", rec.ID, err)
	}
	payload := string(data)

	xerr := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: TradeStream,
		MaxLen: tradeStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":     rec.ID,
			"symbol": rec.Symbol,
			"data":   payload,
		},
	}).Err()
	perr := p.client.Publish(ctx, TradeChannel, payload).Err()

	if err := multierr.Append(xerr, perr); err != nil {
		return fmt.Errorf("redis publish trade %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Publisher) bufferRecord(rec model.TradeRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
		if p.OnDrop != nil {
			p.OnDrop()
		}
	}
	p.buffer = append(p.buffer, rec)
}

// flush replays buffered records in order. Records that fail again go
// back to the front of the buffer.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]model.TradeRecord, 0, 64)
	p.mu.Unlock()

	for i, rec := range toFlush {
		if err := p.cb.Execute(func() error { return p.publish(ctx, rec) }); err != nil {
			p.mu.Lock()
			p.buffer = append(append([]model.TradeRecord{}, toFlush[i:]...), p.buffer...)
			p.mu.Unlock()
			p.log.Warn("buffered trade replay interrupted", "remaining", len(toFlush)-i, "error", err)
			return
		}
	}
	p.log.Info("flushed buffered trades", "count", len(toFlush))
}
