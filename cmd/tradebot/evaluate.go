package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trading-enginev1/internal/model"
	redisstore "trading-enginev1/internal/store/redis"
	"trading-enginev1/internal/strategy"
)

// evaluation is the output of the evaluate command.
type evaluation struct {
	Symbol    string                `json:"symbol,omitempty"`
	Price     *float64              `json:"price,omitempty"`
	Votes     map[string]model.Vote `json:"votes"`
	Missing   []string              `json:"missing,omitempty"`
	Buy       int                   `json:"buy"`
	Sell      int                   `json:"sell"`
	Hold      int                   `json:"hold"`
	Threshold float64               `json:"threshold"`
	Signal    model.Signal          `json:"signal"`

	order []string
}

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var (
		path      string
		symbol    string
		threshold float64
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Show the strategy votes and consensus for one snapshot without trading",
		Long: `Evaluate runs every strategy against an indicator snapshot and prints the
votes and the consensus signal. The snapshot is read from --file ("-" for
stdin) or, with --symbol, from Redis. No position or capital is touched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Strategy.Threshold
			}

			var snap model.IndicatorSnapshot
			switch {
			case path != "":
				data, err := readInput(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				if snap, _, err = redisstore.DecodeSnapshot(data); err != nil {
					return fmt.Errorf("decode %s: %w", path, err)
				}
			case symbol != "":
				rdb, err := redisstore.Connect(cmd.Context(), redisConfig(cfg))
				if err != nil {
					return err
				}
				defer rdb.Close()
				snap, err = redisstore.NewSnapshotReader(rdb).Snapshot(cmd.Context(), symbol, time.Now())
				if err != nil {
					return err
				}
			default:
				return errors.New("one of --file or --symbol is required")
			}

			ev := evaluate(snap, threshold)
			ev.Symbol = symbol
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), ev)
			}
			return printEvaluation(cmd.OutOrStdout(), ev)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "snapshot JSON file, - for stdin")
	cmd.Flags().StringVar(&symbol, "symbol", "", "read the latest snapshot of this symbol from Redis")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "consensus threshold (default: strategy.threshold)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func evaluate(snap model.IndicatorSnapshot, threshold float64) evaluation {
	evaluator := strategy.NewEvaluator(strategy.Defaults()...)
	res := evaluator.Evaluate(snap)

	ev := evaluation{
		Votes:     res.Votes,
		Threshold: threshold,
		Signal:    strategy.AggregateThreshold(res.Votes, threshold),
		order:     evaluator.Names(),
	}
	ev.Buy, ev.Sell, ev.Hold = strategy.Tally(res.Votes)
	for _, m := range res.Missing() {
		ev.Missing = append(ev.Missing, m.Error())
	}
	if p, ok := snap.Price(); ok {
		ev.Price = &p
	}
	return ev
}

func printEvaluation(out io.Writer, ev evaluation) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tVOTE")
	for _, name := range ev.order {
		fmt.Fprintf(w, "%s\t%s\n", name, ev.Votes[name])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, m := range ev.Missing {
		fmt.Fprintf(out, "missing: %s\n", m)
	}
	_, err := fmt.Fprintf(out, "\nBUY %d  SELL %d  HOLD %d  threshold %.2f  ->  %s\n",
		ev.Buy, ev.Sell, ev.Hold, ev.Threshold, ev.Signal)
	return err
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
