package gateway

import (
	"sort"
	"sync"
)

const defaultReplaySize = 500

// ReplayEntry holds a single broadcast envelope.
type ReplayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes in global sequence order so
// reconnecting clients can backfill what they missed. Entries must be
// pushed with increasing Seq; lookups binary-search on it.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []ReplayEntry
	start   int // physical index of the oldest entry
	n       int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = defaultReplaySize
	}
	return &ReplayBuffer{entries: make([]ReplayEntry, capacity)}
}

// Push stores a copy of data, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	e := ReplayEntry{Seq: seq, Data: append([]byte(nil), data...)}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.n < len(rb.entries) {
		rb.entries[rb.phys(rb.n)] = e
		rb.n++
		return
	}
	rb.entries[rb.start] = e
	rb.start = rb.phys(1)
}

// Range returns the entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []ReplayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	lo := sort.Search(rb.n, func(i int) bool { return rb.at(i).Seq >= fromSeq })
	hi := sort.Search(rb.n, func(i int) bool { return rb.at(i).Seq > toSeq })
	if lo >= hi {
		return nil
	}
	out := make([]ReplayEntry, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, rb.at(i))
	}
	return out
}

// Since returns the entries newer than seq, oldest first.
func (rb *ReplayBuffer) Since(seq int64) []ReplayEntry {
	return rb.Range(seq+1, 1<<62)
}

// Oldest returns the sequence of the oldest retained envelope.
func (rb *ReplayBuffer) Oldest() (int64, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.n == 0 {
		return 0, false
	}
	return rb.at(0).Seq, true
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

// at returns the logical entry i, 0 being the oldest.
func (rb *ReplayBuffer) at(i int) ReplayEntry { return rb.entries[rb.phys(i)] }

func (rb *ReplayBuffer) phys(i int) int { return (rb.start + i) % len(rb.entries) }
