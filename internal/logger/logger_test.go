package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_JSONWithService(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log := InitWriter(&buf, "tradebot", slog.LevelInfo)
	log.Info("hello", slog.Int("n", 1))
	log.Debug("dropped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tradebot", line["service"])
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, float64(1), line["n"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestTickID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TickID(ctx))
	assert.Nil(t, Attrs(ctx))

	ctx = WithTickID(ctx, "INFY-1")
	assert.Equal(t, "INFY-1", TickID(ctx))
	assert.Len(t, Attrs(ctx), 1)
}

func TestNewTickID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := NewTickID("NSE:SBIN-EQ", ts)
	assert.Equal(t, "NSE:SBIN-EQ-1705314600123456789", tid)
}
