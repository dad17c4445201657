// Package id issues time-sortable identifiers for trade records.
package id

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Monotonic keeps IDs minted within the same millisecond ordered.
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID stamped with the given time. Trade records use the tick
// timestamp so replayed history sorts the same way it happened.
func New(at time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	if at.IsZero() {
		at = time.Now()
	}
	v, err := ulid.New(ulid.Timestamp(at.UTC()), entropy)
	if err != nil {
		// Monotonic entropy only fails on overflow within one millisecond.
		return ulid.Make().String()
	}
	return v.String()
}
