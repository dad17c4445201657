package model

import "time"

// Position is the single open position a symbol may hold.
// Shares and EntryPrice are always positive; the side lives in Direction.
type Position struct {
	Symbol          string    `json:"symbol"`
	Direction       Direction `json:"type"`
	EntryPrice      float64   `json:"entry_price"`
	Shares          int64     `json:"shares"`
	EntryTime       time.Time `json:"entry_date"`
	ExtremePrice    float64   `json:"max_swing_high"`
	TrailingStopPct float64   `json:"trailing_stop_loss"`
}

// ProfitLoss returns the gross P/L of closing the position at price,
// before transaction costs.
func (p *Position) ProfitLoss(price float64) float64 {
	if p.Direction == Short {
		return (p.EntryPrice - price) * float64(p.Shares)
	}
	return (price - p.EntryPrice) * float64(p.Shares)
}

// Notional is the entry value of the position.
func (p *Position) Notional() float64 {
	return p.EntryPrice * float64(p.Shares)
}

// HoldingDays returns the elapsed time between entry and exit in fractional days.
func (p *Position) HoldingDays(exit time.Time) float64 {
	return exit.Sub(p.EntryTime).Hours() / 24
}
