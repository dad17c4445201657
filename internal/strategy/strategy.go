// Package strategy turns an indicator snapshot into per-rule votes and a
// consensus signal.
//
// A Strategy reads a fixed set of indicator families and emits BUY, SELL or
// HOLD. The Evaluator runs a fixed, ordered list of strategies; Aggregate
// reduces their votes to a single signal by majority threshold.
package strategy

import (
	"errors"

	"trading-enginev1/internal/model"
)

// Strategy is the interface every technical-analysis rule implements.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate votes on one snapshot. It returns *MissingIndicatorError when
	// a required reading is absent.
	Evaluate(snap model.IndicatorSnapshot) (model.Vote, error)
}

// Defaults returns the five standard rules in evaluation order.
func Defaults() []Strategy {
	return []Strategy{
		BollingerRSIVolume{},
		MACDStochasticADX{},
		EMAATROBV{},
		SARVWAPRSI{},
		FibonacciIchimokuCCI{},
	}
}

// Evaluation is the result of running every registered strategy once.
type Evaluation struct {
	Votes map[string]model.Vote

	// Failures lists the rules that could not evaluate; each of them voted HOLD.
	Failures []error
}

// Missing returns the failures caused by absent indicator data.
func (e Evaluation) Missing() []*MissingIndicatorError {
	var out []*MissingIndicatorError
	for _, err := range e.Failures {
		var mie *MissingIndicatorError
		if errors.As(err, &mie) {
			out = append(out, mie)
		}
	}
	return out
}

// Evaluator runs a fixed list of strategies against a snapshot.
type Evaluator struct {
	strategies []Strategy
}

// NewEvaluator creates an evaluator over the given strategies. With no
// arguments the five default rules are registered.
func NewEvaluator(strategies ...Strategy) *Evaluator {
	if len(strategies) == 0 {
		strategies = Defaults()
	}
	return &Evaluator{strategies: strategies}
}

// Register appends a strategy to the evaluation list.
func (e *Evaluator) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Names returns the registered strategy names in evaluation order.
func (e *Evaluator) Names() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Evaluate runs every strategy. A failing rule never aborts the others: it
// votes HOLD and its error is reported in Failures.
func (e *Evaluator) Evaluate(snap model.IndicatorSnapshot) Evaluation {
	ev := Evaluation{Votes: make(map[string]model.Vote, len(e.strategies))}
	for _, s := range e.strategies {
		vote, err := s.Evaluate(snap)
		if err != nil {
			ev.Failures = append(ev.Failures, err)
			vote = model.VoteHold
		}
		ev.Votes[s.Name()] = vote
	}
	return ev
}
