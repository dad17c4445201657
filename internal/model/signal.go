package model

import "strings"

// Vote is a single strategy's opinion for one tick.
type Vote string

const (
	VoteBuy  Vote = "BUY"
	VoteSell Vote = "SELL"
	VoteHold Vote = "HOLD"
)

// Signal is the consensus outcome across all strategy votes.
// SignalNone means no category reached the majority threshold.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalNone Signal = "NONE"
)

// Valid reports whether s is one of BUY, SELL or NONE.
func (s Signal) Valid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalNone:
		return true
	}
	return false
}

// ParseSignal normalizes a textual signal. Unknown values are returned as-is
// so the caller can reject them with the original text.
func ParseSignal(s string) Signal {
	return Signal(strings.ToUpper(strings.TrimSpace(s)))
}

// Direction is the side of an open position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Valid reports whether d is LONG or SHORT.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Target maps an actionable signal to the direction it asks for.
// ok is false for NONE and unknown signals.
func (s Signal) Target() (d Direction, ok bool) {
	switch s {
	case SignalBuy:
		return Long, true
	case SignalSell:
		return Short, true
	}
	return "", false
}

// Action is the kind of ledger event captured in the trade history.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)
