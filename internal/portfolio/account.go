package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Sizing defaults: a 5% initial stop risking 1% of capital.
const (
	DefaultStopFraction = 0.05
	DefaultRiskFraction = 0.01
)

// AccountConfig holds the capital and sizing parameters.
type AccountConfig struct {
	InitialCapital  decimal.Decimal
	TransactionCost decimal.Decimal
	RiskFraction    decimal.Decimal // share of capital risked per trade
	StopFraction    decimal.Decimal // initial stop distance as a share of price
}

// DefaultAccountConfig returns 10000 capital, 20 per leg, 1% risk, 5% stop.
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		InitialCapital:  decimal.NewFromInt(10000),
		TransactionCost: decimal.NewFromInt(20),
		RiskFraction:    decimal.NewFromFloat(DefaultRiskFraction),
		StopFraction:    decimal.NewFromFloat(DefaultStopFraction),
	}
}

// Account tracks available capital and sizes trades by fixed fractional
// risk. It is not safe for concurrent use; the Ledger serializes access.
type Account struct {
	available decimal.Decimal
	txCost    decimal.Decimal
	risk      decimal.Decimal
	stop      decimal.Decimal
}

// NewAccount validates cfg and returns an account holding its initial capital.
func NewAccount(cfg AccountConfig) (*Account, error) {
	switch {
	case cfg.InitialCapital.IsNegative():
		return nil, fmt.Errorf("portfolio: initial capital %s is negative", cfg.InitialCapital)
	case cfg.TransactionCost.IsNegative():
		return nil, fmt.Errorf("portfolio: transaction cost %s is negative", cfg.TransactionCost)
	case !cfg.RiskFraction.IsPositive() || cfg.RiskFraction.GreaterThan(decimal.NewFromInt(1)):
		return nil, fmt.Errorf("portfolio: risk fraction %s outside (0, 1]", cfg.RiskFraction)
	case !cfg.StopFraction.IsPositive() || cfg.StopFraction.GreaterThan(decimal.NewFromInt(1)):
		return nil, fmt.Errorf("portfolio: stop fraction %s outside (0, 1]", cfg.StopFraction)
	}
	return &Account{
		available: cfg.InitialCapital,
		txCost:    cfg.TransactionCost,
		risk:      cfg.RiskFraction,
		stop:      cfg.StopFraction,
	}, nil
}

// Available returns the capital not committed to open positions.
func (a *Account) Available() decimal.Decimal { return a.available }

// TransactionCost returns the fixed cost charged per trade leg.
func (a *Account) TransactionCost() decimal.Decimal { return a.txCost }

// Size returns the share count for an entry at price and the total cost of
// the entry leg. At least one share is always sized.
func (a *Account) Size(price decimal.Decimal) (shares int64, cost decimal.Decimal) {
	stopLoss := price.Mul(a.stop)
	if stopLoss.IsPositive() {
		shares = a.available.Mul(a.risk).Div(stopLoss).Floor().IntPart()
	}
	if shares < 1 {
		shares = 1
	}
	cost = price.Mul(decimal.NewFromInt(shares)).Add(a.txCost)
	return shares, cost
}

// CanAfford reports whether cost fits into the available capital.
func (a *Account) CanAfford(cost decimal.Decimal) bool {
	return a.available.GreaterThanOrEqual(cost)
}

func (a *Account) debit(amount decimal.Decimal)  { a.available = a.available.Sub(amount) }
func (a *Account) credit(amount decimal.Decimal) { a.available = a.available.Add(amount) }
