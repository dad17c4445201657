package model

import "time"

// Close reasons recorded on CLOSE trade records.
const (
	ReasonSignal       = "signal"
	ReasonTrailingStop = "trailing_stop"
	ReasonManual       = "manual"
)

// TradeRecord is one immutable entry of the audit trail. Every open and close
// produces exactly one record.
type TradeRecord struct {
	ID           string    `json:"id"`
	Action       Action    `json:"action"`
	Direction    Direction `json:"position_type"`
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Shares       int64     `json:"shares"`
	Timestamp    time.Time `json:"date"`
	BalanceAfter float64   `json:"balance_after_trade"`
	HoldingDays  float64   `json:"holding_time"`          // CLOSE only
	ProfitLoss   float64   `json:"profit_loss,omitempty"` // net of cost, CLOSE only
	Reason       string    `json:"reason,omitempty"`
}
