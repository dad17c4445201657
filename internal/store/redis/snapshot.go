package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-enginev1/internal/breaker"
	"trading-enginev1/internal/model"
)

var (
	// ErrSnapshotNotFound means no snapshot key exists for the symbol.
	ErrSnapshotNotFound = errors.New("redis: indicator snapshot not found")
	// ErrStaleSnapshot means the stored snapshot is older than the allowed age.
	ErrStaleSnapshot = errors.New("redis: indicator snapshot is stale")
)

// Getter is the subset of the Redis client used to read snapshots.
type Getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// envelope is the document stored at ind:snapshot:<symbol>. A document
// without an "indicators" member is read as the indicator map itself.
type envelope struct {
	Timestamp  time.Time               `json:"ts"`
	Price      *float64                `json:"price,omitempty"`
	Indicators model.IndicatorSnapshot `json:"indicators"`
}

// SnapshotReader loads indicator snapshots published by the indicator
// service.
type SnapshotReader struct {
	client Getter
	maxAge time.Duration
	cb     *breaker.Breaker
}

// SnapshotOption configures a SnapshotReader.
type SnapshotOption func(*SnapshotReader)

// WithMaxAge rejects snapshots whose ts is older than d relative to asOf.
// Zero disables the check.
func WithMaxAge(d time.Duration) SnapshotOption {
	return func(r *SnapshotReader) { r.maxAge = d }
}

// WithReadBreaker routes reads through cb.
func WithReadBreaker(cb *breaker.Breaker) SnapshotOption {
	return func(r *SnapshotReader) { r.cb = cb }
}

// NewSnapshotReader returns a reader over client.
func NewSnapshotReader(client Getter, opts ...SnapshotOption) *SnapshotReader {
	r := &SnapshotReader{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns symbol's indicator snapshot. When the envelope carries a
// price it is exposed as the price.close field.
func (r *SnapshotReader) Snapshot(ctx context.Context, symbol string, asOf time.Time) (model.IndicatorSnapshot, error) {
	var data string
	get := func() error {
		v, err := r.client.Get(ctx, SnapshotKey(symbol)).Result()
		if errors.Is(err, goredis.Nil) {
			// A missing key is not a connectivity failure.
			return nil
		}
		data = v
		return err
	}

	var err error
	if r.cb != nil {
		err = r.cb.Execute(get)
	} else {
		err = get()
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot %s: %w", symbol, err)
	}
	if data == "" {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, symbol)
	}

	return r.decode(symbol, []byte(data), asOf)
}

func (r *SnapshotReader) decode(symbol string, data []byte, asOf time.Time) (model.IndicatorSnapshot, error) {
	snap, ts, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", symbol, err)
	}
	if r.maxAge > 0 && !ts.IsZero() && !asOf.IsZero() && asOf.Sub(ts) > r.maxAge {
		return nil, fmt.Errorf("%w: %s at %s", ErrStaleSnapshot, symbol, ts.Format(time.RFC3339))
	}
	return snap, nil
}

// DecodeSnapshot parses a snapshot document: either the envelope
// {"ts","price","indicators"} or a bare indicator map. The envelope price is
// exposed as the price.close field; ts is zero for bare documents.
func DecodeSnapshot(data []byte) (model.IndicatorSnapshot, time.Time, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, time.Time{}, err
	}

	if _, wrapped := probe["indicators"]; !wrapped {
		var snap model.IndicatorSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, time.Time{}, err
		}
		return snap, time.Time{}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, err
	}
	snap := env.Indicators
	if snap == nil {
		snap = model.IndicatorSnapshot{}
	}
	if env.Price != nil {
		if _, ok := snap.Latest(model.PriceFamily, model.PriceField); !ok {
			snap[model.PriceFamily] = model.Indicator{model.PriceField: model.Num(*env.Price)}
		}
	}
	return snap, env.Timestamp, nil
}
