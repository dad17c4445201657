package journal

import (
	"math"

	"trading-enginev1/internal/model"
)

// Summary aggregates realized results from a set of trade records.
type Summary struct {
	Opens          int     `json:"opens"`
	Closes         int     `json:"closes"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"` // percent of closes with positive net P/L
	NetPnL         float64 `json:"net_pnl"`
	BestTrade      float64 `json:"best_trade"`
	WorstTrade     float64 `json:"worst_trade"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
	StopExits      int     `json:"stop_exits"`
}

// Summarize computes a Summary. Only CLOSE records carry realized P/L.
func Summarize(recs []model.TradeRecord) Summary {
	var s Summary
	var holding float64
	best, worst := math.Inf(-1), math.Inf(1)

	for _, r := range recs {
		if r.Action == model.ActionOpen {
			s.Opens++
			continue
		}
		if r.Action != model.ActionClose {
			continue
		}
		s.Closes++
		s.NetPnL += r.ProfitLoss
		holding += r.HoldingDays
		if r.ProfitLoss > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		if r.Reason == model.ReasonTrailingStop {
			s.StopExits++
		}
		best = math.Max(best, r.ProfitLoss)
		worst = math.Min(worst, r.ProfitLoss)
	}

	if s.Closes > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Closes) * 100
		s.AvgHoldingDays = holding / float64(s.Closes)
		s.BestTrade = best
		s.WorstTrade = worst
	}
	return s
}
