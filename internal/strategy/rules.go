package strategy

import "trading-enginev1/internal/model"

// BollingerRSIVolume buys oversold dips on rising volume and sells
// overbought stretches. The middle band stands in for the current price.
type BollingerRSIVolume struct{}

func (BollingerRSIVolume) Name() string { return "Bollinger_RSI_Volume" }

func (s BollingerRSIVolume) Evaluate(snap model.IndicatorSnapshot) (model.Vote, error) {
	r := &reader{strategy: s.Name(), snap: snap}
	lower := r.latest("bollinger", "lowerband")
	upper := r.latest("bollinger", "upperband")
	price := r.latest("bollinger", "middleband")
	rsi := r.latest("rsi", "rsi")
	volume := r.series("volume", "volume")
	if r.err != nil {
		return model.VoteHold, r.err
	}

	switch {
	case price <= lower && rsi < 30 && last(volume) > mean(volume):
		return model.VoteBuy, nil
	case price >= upper && rsi > 70:
		return model.VoteSell, nil
	}
	return model.VoteHold, nil
}

// MACDStochasticADX follows MACD crossovers confirmed by momentum and trend
// strength.
type MACDStochasticADX struct{}

func (MACDStochasticADX) Name() string { return "MACD_Stochastic_ADX" }

func (s MACDStochasticADX) Evaluate(snap model.IndicatorSnapshot) (model.Vote, error) {
	r := &reader{strategy: s.Name(), snap: snap}
	macd := r.latest("macd", "macd")
	signal := r.latest("macd", "signal")
	k := r.latest("stochastic", "stochastic_k")
	adx := r.latest("adx", "adx")
	if r.err != nil {
		return model.VoteHold, r.err
	}

	switch {
	case macd > signal && k > 20 && adx > 25:
		return model.VoteBuy, nil
	case macd < signal && k < 80:
		return model.VoteSell, nil
	}
	return model.VoteHold, nil
}

// EMAATROBV follows the short/long EMA cross, buying only when volatility
// and on-balance volume are above their window means.
type EMAATROBV struct{}

func (EMAATROBV) Name() string { return "EMA_ATR_OBV" }

func (s EMAATROBV) Evaluate(snap model.IndicatorSnapshot) (model.Vote, error) {
	r := &reader{strategy: s.Name(), snap: snap}
	short := r.latest("ema", "ema_short")
	long := r.latest("ema", "ema_long")
	atr := r.series("atr", "atr")
	obv := r.series("obv", "obv")
	if r.err != nil {
		return model.VoteHold, r.err
	}

	switch {
	case short > long && last(atr) > mean(atr) && last(obv) > mean(obv):
		return model.VoteBuy, nil
	case short < long:
		return model.VoteSell, nil
	}
	return model.VoteHold, nil
}

// SARVWAPRSI compares parabolic SAR against VWAP with an RSI band filter on
// the buy side.
type SARVWAPRSI struct{}

func (SARVWAPRSI) Name() string { return "SAR_VWAP_RSI" }

func (s SARVWAPRSI) Evaluate(snap model.IndicatorSnapshot) (model.Vote, error) {
	r := &reader{strategy: s.Name(), snap: snap}
	sar := r.latest("sar", "sar")
	vwap := r.latest("vwap", "vwap")
	rsi := r.latest("rsi", "rsi")
	if r.err != nil {
		return model.VoteHold, r.err
	}

	switch {
	case sar > vwap && rsi > 50 && rsi < 70:
		return model.VoteBuy, nil
	case sar < vwap:
		return model.VoteSell, nil
	}
	return model.VoteHold, nil
}

// FibonacciIchimokuCCI walks the retracement levels in the order supplied.
// The first level that decides wins.
type FibonacciIchimokuCCI struct{}

func (FibonacciIchimokuCCI) Name() string { return "Fibonacci_Ichimoku_CCI" }

func (s FibonacciIchimokuCCI) Evaluate(snap model.IndicatorSnapshot) (model.Vote, error) {
	r := &reader{strategy: s.Name(), snap: snap}
	price := r.latest("fibonacci", "price")
	levels := r.series("fibonacci", "levels")
	aboveCloud := r.flag("ichimoku", "price_above_cloud")
	cci := r.latest("cci", "cci")
	if r.err != nil {
		return model.VoteHold, r.err
	}

	for _, level := range levels {
		if price >= level && aboveCloud && cci > -100 {
			return model.VoteBuy, nil
		}
		if price < level {
			return model.VoteSell, nil
		}
	}
	return model.VoteHold, nil
}
