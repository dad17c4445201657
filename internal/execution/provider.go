package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-enginev1/internal/model"
)

// ErrNoSnapshot is returned by StaticProvider for unknown symbols.
var ErrNoSnapshot = errors.New("execution: no snapshot for symbol")

// SnapshotProvider supplies the indicator snapshot of a symbol as of a
// point in time.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, symbol string, asOf time.Time) (model.IndicatorSnapshot, error)
}

// StaticProvider serves snapshots held in memory. It is safe for
// concurrent use.
type StaticProvider struct {
	mu    sync.RWMutex
	snaps map[string]model.IndicatorSnapshot
}

// NewStaticProvider returns a provider seeded with snaps.
func NewStaticProvider(snaps map[string]model.IndicatorSnapshot) *StaticProvider {
	p := &StaticProvider{snaps: make(map[string]model.IndicatorSnapshot, len(snaps))}
	for sym, s := range snaps {
		p.snaps[sym] = s
	}
	return p
}

// Set replaces the snapshot of symbol.
func (p *StaticProvider) Set(symbol string, snap model.IndicatorSnapshot) {
	p.mu.Lock()
	p.snaps[symbol] = snap
	p.mu.Unlock()
}

func (p *StaticProvider) Snapshot(_ context.Context, symbol string, _ time.Time) (model.IndicatorSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.snaps[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, symbol)
	}
	return snap, nil
}
