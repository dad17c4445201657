package portfolio

import (
	"math"

	"trading-enginev1/internal/model"
)

// Return is the signed return of a position in percent, favorable moves
// positive for both directions.
func Return(d model.Direction, entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	if d == model.Short {
		return (entry - current) / entry * 100
	}
	return (current - entry) / entry * 100
}

// StopPct derives the trailing stop percentage from unrealized return:
// below 5% the stop is 0, from 5% to 10% it sits at 50%, and beyond that
// it loosens by one point per point of return down to 10%.
func StopPct(d model.Direction, entry, current float64) float64 {
	r := Return(d, entry, current)
	switch {
	case r < 5:
		return 0
	case r < 10:
		return 50
	default:
		return math.Max(50-(r-10), 10)
	}
}

// Ratchet moves the extreme price toward current only in the favorable
// direction: up for LONG, down for SHORT.
func Ratchet(d model.Direction, extreme, current float64) float64 {
	if d == model.Short {
		return math.Min(extreme, current)
	}
	return math.Max(extreme, current)
}

// StopHit reports whether current has crossed the trailing stop measured
// from extreme. A zero stop fires whenever current is at or beyond extreme
// on the adverse side.
func StopHit(d model.Direction, extreme, current, pct float64) bool {
	if d == model.Short {
		return current >= extreme*(1+pct/100)
	}
	return current <= extreme*(1-pct/100)
}
