package strategy

import "trading-enginev1/internal/model"

// DefaultThreshold is the share of votes a category needs to win.
const DefaultThreshold = 0.6

// Aggregate reduces votes to a consensus signal at DefaultThreshold.
func Aggregate(votes map[string]model.Vote) model.Signal {
	return AggregateThreshold(votes, DefaultThreshold)
}

// AggregateThreshold counts votes per category, HOLD included in the
// denominator. The first of BUY, SELL, HOLD whose share reaches threshold
// wins; HOLD maps to NONE. Values outside BUY, SELL, HOLD are ignored.
func AggregateThreshold(votes map[string]model.Vote, threshold float64) model.Signal {
	buy, sell, hold := Tally(votes)
	total := float64(buy + sell + hold)
	if total == 0 {
		return model.SignalNone
	}

	switch {
	case float64(buy)/total >= threshold:
		return model.SignalBuy
	case float64(sell)/total >= threshold:
		return model.SignalSell
	}
	return model.SignalNone
}

// Tally returns the per-category vote counts in BUY, SELL, HOLD order.
func Tally(votes map[string]model.Vote) (buy, sell, hold int) {
	for _, v := range votes {
		switch v {
		case model.VoteBuy:
			buy++
		case model.VoteSell:
			sell++
		case model.VoteHold:
			hold++
		}
	}
	return buy, sell, hold
}
