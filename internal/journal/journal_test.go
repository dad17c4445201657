package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-enginev1/internal/metrics"
	"trading-enginev1/internal/model"
	"trading-enginev1/internal/notification"
)

type sliceSink struct {
	mu   sync.Mutex
	name string
	recs []model.TradeRecord
	err  error
}

func (s *sliceSink) Name() string { return s.name }

func (s *sliceSink) Append(_ context.Context, rec model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *sliceSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recs))
	for i, r := range s.recs {
		out[i] = r.ID
	}
	return out
}

type alertSink struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (a *alertSink) Send(_ context.Context, al notification.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
	return nil
}

func rec(i int, symbol string) model.TradeRecord {
	return model.TradeRecord{
		ID:        fmt.Sprintf("T%02d", i),
		Action:    model.ActionOpen,
		Direction: model.Long,
		Symbol:    symbol,
		Price:     100,
		Shares:    1,
		Timestamp: time.Date(2024, 1, 15, 9, 15+i, 0, 0, time.UTC),
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMemory_NewestFirstAndWraps(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, m.Append(ctx, rec(i, "A")))
	}

	got, err := m.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"T05", "T04", "T03"}, []string{got[0].ID, got[1].ID, got[2].ID})

	got, _ = m.List(ctx, 2)
	assert.Len(t, got, 2)
	assert.Equal(t, 3, m.Len())
}

func TestMemory_ListBySymbol(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()
	for i, sym := range []string{"A", "B", "A", "C", "A"} {
		require.NoError(t, m.Append(ctx, rec(i, sym)))
	}

	got, err := m.ListBySymbol(ctx, "A", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "T04", got[0].ID)
	assert.Equal(t, "T02", got[1].ID)
}

func TestHistory_RecordFansOut(t *testing.T) {
	a := &sliceSink{name: "a"}
	b := &sliceSink{name: "b"}
	h := New(WithSinks(a, b), WithLogger(quiet()))

	h.Record(context.Background(), rec(1, "SBIN"))

	assert.Equal(t, []string{"T01"}, a.ids())
	assert.Equal(t, []string{"T01"}, b.ids())
	got, err := h.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestHistory_SinkFailureIsSurfacedNotReturned(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	alerts := &alertSink{}
	bad := &sliceSink{name: "sqlite", err: errors.New("database is locked")}
	good := &sliceSink{name: "memory-copy"}

	h := New(WithSinks(bad, good), WithMetrics(m), WithNotifier(alerts), WithLogger(quiet()))
	h.Record(context.Background(), rec(1, "SBIN"))

	assert.Equal(t, []string{"T01"}, good.ids(), "one failing sink does not block the others")
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, notification.AlertWarning, alerts.alerts[0].Level)
	assert.Contains(t, alerts.alerts[0].Message, "database is locked")
	assert.Len(t, h.Recent(10), 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, mf := range families {
		if mf.GetName() == "tradebot_history_failures_total" {
			failures = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, failures)
}

func TestHistory_QueueKeepsOrderOnOverflow(t *testing.T) {
	sink := &sliceSink{name: "s"}
	h := New(WithSinks(sink), WithQueue(2), WithLogger(quiet()))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		h.Record(ctx, rec(i, "A"))
	}
	assert.Equal(t, []string{"T01", "T02", "T03"}, sink.ids())
	assert.Equal(t, 2, h.Pending())

	h.Flush(ctx)
	assert.Equal(t, []string{"T01", "T02", "T03", "T04", "T05"}, sink.ids())
	assert.Zero(t, h.Pending())
}

func TestHistory_RunDrainsQueue(t *testing.T) {
	sink := &sliceSink{name: "s"}
	h := New(WithSinks(sink), WithQueue(64), WithLogger(quiet()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	h.Record(ctx, rec(1, "A"))
	assert.Eventually(t, func() bool { return len(sink.ids()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestHistory_ReaderOverridesMemory(t *testing.T) {
	store := NewMemory(10)
	require.NoError(t, store.Append(context.Background(), rec(9, "X")))
	h := New(WithReader(store), WithLogger(quiet()))

	got, err := h.ListBySymbol(context.Background(), "X", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "T09", got[0].ID)
}

func TestSummarize(t *testing.T) {
	recs := []model.TradeRecord{
		{Action: model.ActionOpen},
		{Action: model.ActionClose, ProfitLoss: 180, HoldingDays: 1},
		{Action: model.ActionOpen},
		{Action: model.ActionClose, ProfitLoss: -220, HoldingDays: 2, Reason: model.ReasonTrailingStop},
		{Action: model.ActionOpen},
		{Action: model.ActionClose, ProfitLoss: 40, HoldingDays: 3},
	}

	s := Summarize(recs)
	assert.Equal(t, 3, s.Opens)
	assert.Equal(t, 3, s.Closes)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.StopExits)
	assert.InDelta(t, 0.0, s.NetPnL, 1e-9)
	assert.Equal(t, 180.0, s.BestTrade)
	assert.Equal(t, -220.0, s.WorstTrade)
	assert.InDelta(t, 66.666, s.WinRate, 0.01)
	assert.InDelta(t, 2.0, s.AvgHoldingDays, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
}
