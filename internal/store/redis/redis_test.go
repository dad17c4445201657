package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-enginev1/internal/breaker"
	"trading-enginev1/internal/model"
	"trading-enginev1/internal/store/redis"
)

type fakeGetter struct {
	values map[string]string
	err    error
}

func (f *fakeGetter) Get(_ context.Context, key string) *goredis.StringCmd {
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

var now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestSnapshotReader_Envelope(t *testing.T) {
	doc := `{"ts":"2024-03-04T09:59:00Z","price":187.2,"indicators":{
		"rsi":{"rsi":[28.5]},
		"ichimoku":{"price_above_cloud":true}
	}}`
	r := redis.NewSnapshotReader(&fakeGetter{values: map[string]string{"ind:snapshot:AAPL": doc}},
		redis.WithMaxAge(5*time.Minute))

	snap, err := r.Snapshot(context.Background(), "AAPL", now)
	require.NoError(t, err)

	rsi, ok := snap.Latest("rsi", "rsi")
	require.True(t, ok)
	assert.Equal(t, 28.5, rsi)

	above, ok := snap.Flag("ichimoku", "price_above_cloud")
	require.True(t, ok)
	assert.True(t, above)

	price, ok := snap.Price()
	require.True(t, ok)
	assert.Equal(t, 187.2, price)
}

func TestSnapshotReader_BareDocument(t *testing.T) {
	doc := `{"macd":{"macd":[1.2],"signal":[0.8]}}`
	r := redis.NewSnapshotReader(&fakeGetter{values: map[string]string{"ind:snapshot:MSFT": doc}})

	snap, err := r.Snapshot(context.Background(), "MSFT", now)
	require.NoError(t, err)
	v, ok := snap.Latest("macd", "signal")
	require.True(t, ok)
	assert.Equal(t, 0.8, v)
}

func TestDecodeSnapshot(t *testing.T) {
	snap, ts, err := redis.DecodeSnapshot([]byte(`{"ts":"2024-03-04T09:59:00Z","price":50,"indicators":{"price":{"close":[51]}}}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 59, 0, 0, time.UTC), ts)
	price, ok := snap.Price()
	require.True(t, ok)
	assert.Equal(t, 51.0, price, "an explicit price.close wins over the envelope price")

	snap, ts, err = redis.DecodeSnapshot([]byte(`{"cci":{"cci":[120]}}`))
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
	_, ok = snap.Price()
	assert.False(t, ok)
}

func TestSnapshotReader_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := redis.NewSnapshotReader(&fakeGetter{}).Snapshot(ctx, "AAPL", now)
	assert.ErrorIs(t, err, redis.ErrSnapshotNotFound)

	stale := `{"ts":"2024-03-04T09:00:00Z","indicators":{}}`
	r := redis.NewSnapshotReader(&fakeGetter{values: map[string]string{"ind:snapshot:AAPL": stale}},
		redis.WithMaxAge(5*time.Minute))
	_, err = r.Snapshot(ctx, "AAPL", now)
	assert.ErrorIs(t, err, redis.ErrStaleSnapshot)

	corrupt := redis.NewSnapshotReader(&fakeGetter{values: map[string]string{"ind:snapshot:AAPL": "{"}})
	_, err = corrupt.Snapshot(ctx, "AAPL", now)
	assert.Error(t, err)

	down := errors.New("connection refused")
	_, err = redis.NewSnapshotReader(&fakeGetter{err: down}).Snapshot(ctx, "AAPL", now)
	assert.ErrorIs(t, err, down)
}

func TestSnapshotReader_BreakerIgnoresMissingKeys(t *testing.T) {
	cb := breaker.New(1, time.Minute)
	r := redis.NewSnapshotReader(&fakeGetter{}, redis.WithReadBreaker(cb))

	for i := 0; i < 3; i++ {
		_, err := r.Snapshot(context.Background(), "AAPL", now)
		assert.ErrorIs(t, err, redis.ErrSnapshotNotFound)
	}
	assert.Equal(t, breaker.StateClosed, cb.CurrentState())
}

type fakeStream struct {
	mu       sync.Mutex
	fail     bool
	added    []map[string]interface{}
	messages []string
}

func (f *fakeStream) XAdd(_ context.Context, a *goredis.XAddArgs) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return goredis.NewStringResult("", errors.New("xadd: down"))
	}
	f.added = append(f.added, a.Values.(map[string]interface{}))
	return goredis.NewStringResult("1-0", nil)
}

func (f *fakeStream) Publish(_ context.Context, _ string, message interface{}) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return goredis.NewIntResult(0, errors.New("publish: down"))
	}
	f.messages = append(f.messages, message.(string))
	return goredis.NewIntResult(1, nil)
}

func (f *fakeStream) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func rec(id string) model.TradeRecord {
	return model.TradeRecord{ID: id, Action: model.ActionOpen, Direction: model.Long, Symbol: "AAPL", Price: 100, Shares: 20, Timestamp: now}
}

func TestPublisher_AppendPublishesToStreamAndChannel(t *testing.T) {
	fs := &fakeStream{}
	p := redis.NewPublisher(fs, nil, 0)
	assert.Equal(t, "redis", p.Name())

	require.NoError(t, p.Append(context.Background(), rec("01A")))

	require.Len(t, fs.added, 1)
	assert.Equal(t, "01A", fs.added[0]["id"])
	require.Len(t, fs.messages, 1)

	var got model.TradeRecord
	require.NoError(t, json.Unmarshal([]byte(fs.messages[0]), &got))
	assert.Equal(t, "01A", got.ID)
}

func TestPublisher_BuffersWhileOpenAndReplays(t *testing.T) {
	clock := now
	cb := breaker.New(1, time.Minute, breaker.WithClock(func() time.Time { return clock }))
	fs := &fakeStream{fail: true}
	p := redis.NewPublisher(fs, cb, 2)

	var dropped int
	p.OnDrop = func() { dropped++ }

	ctx := context.Background()
	assert.Error(t, p.Append(ctx, rec("01A")))
	assert.Equal(t, breaker.StateOpen, cb.CurrentState())

	assert.NoError(t, p.Append(ctx, rec("01B")))
	assert.NoError(t, p.Append(ctx, rec("01C")))
	assert.NoError(t, p.Append(ctx, rec("01D")))
	assert.Equal(t, 2, p.Pending())
	assert.Equal(t, 1, dropped)

	fs.setFail(false)
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, p.Append(ctx, rec("01E")))

	assert.Equal(t, 0, p.Pending())
	var ids []interface{}
	for _, v := range fs.added {
		ids = append(ids, v["id"])
	}
	assert.Equal(t, []interface{}{"01E", "01C", "01D"}, ids)
}
