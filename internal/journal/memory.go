package journal

import (
	"context"
	"sync"

	"trading-enginev1/internal/model"
)

// Memory keeps the most recent records in a fixed-size circular buffer.
// Older records are overwritten once it is full.
type Memory struct {
	mu   sync.RWMutex
	buf  []model.TradeRecord
	pos  int // next write position
	full bool
}

// NewMemory creates a buffer holding up to capacity records (default 1000).
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{buf: make([]model.TradeRecord, capacity)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Append(_ context.Context, rec model.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.pos] = rec
	m.pos = (m.pos + 1) % len(m.buf)
	if m.pos == 0 {
		m.full = true
	}
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]model.TradeRecord, error) {
	return m.collect(limit, func(model.TradeRecord) bool { return true }), nil
}

func (m *Memory) ListBySymbol(_ context.Context, symbol string, limit int) ([]model.TradeRecord, error) {
	return m.collect(limit, func(r model.TradeRecord) bool { return r.Symbol == symbol }), nil
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.len()
}

func (m *Memory) len() int {
	if m.full {
		return len(m.buf)
	}
	return m.pos
}

// collect walks newest to oldest.
func (m *Memory) collect(limit int, keep func(model.TradeRecord) bool) []model.TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.len()
	out := make([]model.TradeRecord, 0, n)
	for i := 0; i < n; i++ {
		idx := (m.pos - 1 - i + len(m.buf)) % len(m.buf)
		rec := m.buf[idx]
		if !keep(rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
