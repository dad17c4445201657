package portfolio

import (
	"context"
	"sync"

	"trading-enginev1/internal/model"
)

// Repository is the durable position store. SaveAll replaces the whole set
// atomically; LoadAll returns what the last successful SaveAll wrote.
type Repository interface {
	LoadAll(ctx context.Context) (map[string]model.Position, error)
	SaveAll(ctx context.Context, positions map[string]model.Position) error
}

// Recorder receives every trade record the ledger produces. Implementations
// must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, rec model.TradeRecord)
}

// MemoryRepository keeps positions in memory. It backs BACKTEST runs.
type MemoryRepository struct {
	mu        sync.Mutex
	positions map[string]model.Position
	saves     int
}

// NewMemoryRepository returns an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{positions: make(map[string]model.Position)}
}

func (r *MemoryRepository) LoadAll(context.Context) (map[string]model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyPositions(r.positions), nil
}

func (r *MemoryRepository) SaveAll(_ context.Context, positions map[string]model.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = copyPositions(positions)
	r.saves++
	return nil
}

// Saves returns how many times SaveAll was called.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func copyPositions(src map[string]model.Position) map[string]model.Position {
	dst := make(map[string]model.Position, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
