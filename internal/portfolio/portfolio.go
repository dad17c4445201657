// Package portfolio owns open positions and trading capital.
//
// The Ledger is the sole mutator of both. Every open and close is a single
// atomic unit under one lock: capital and the position set change together,
// a trade record is emitted, and the position set is written to a
// Repository. Trailing-stop math lives in trailing.go; sizing and cash in
// account.go.
package portfolio

import (
	"math"

	"trading-enginev1/internal/model"
)

// State is the position state of one symbol.
type State string

const (
	Flat  State = "FLAT"
	Long  State = "LONG"
	Short State = "SHORT"
)

func stateOf(pos model.Position, held bool) State {
	if !held {
		return Flat
	}
	if pos.Direction == model.Short {
		return Short
	}
	return Long
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
