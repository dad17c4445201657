package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trading-enginev1/internal/config"
	"trading-enginev1/internal/journal"
	"trading-enginev1/internal/model"
	sqlitestore "trading-enginev1/internal/store/sqlite"
)

var errNoHistoryStore = errors.New("trade history is only queryable with the sqlite history store")

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		symbol  string
		limit   int
		summary bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded trades, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if !cfg.HasHistoryStore(config.StoreSQLite) {
				return errNoHistoryStore
			}
			db, err := openSQLite(cfg.Persistence.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			var reader journal.Reader = sqlitestore.NewTradeStore(db)
			if summary {
				limit = 0
			}
			var recs []model.TradeRecord
			if symbol != "" {
				recs, err = reader.ListBySymbol(cmd.Context(), symbol, limit)
			} else {
				recs, err = reader.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case summary:
				return printSummary(out, journal.Summarize(recs), asJSON)
			case asJSON:
				return writeJSON(out, recs)
			default:
				return printTrades(out, recs)
			}
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "only trades of this symbol")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of trades (0 = all)")
	cmd.Flags().BoolVar(&summary, "summary", false, "print aggregate statistics over all matching trades")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printTrades(out io.Writer, recs []model.TradeRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(out, "no trades")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSYMBOL\tACTION\tSIDE\tSHARES\tPRICE\tP/L\tBALANCE\tREASON")
	for _, r := range recs {
		pl := "-"
		if r.Action == model.ActionClose {
			pl = fmt.Sprintf("%.2f", r.ProfitLoss)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\t%.2f\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Symbol, r.Action, r.Direction,
			r.Shares, r.Price, pl, r.BalanceAfter, dash(r.Reason))
	}
	return w.Flush()
}

func printSummary(out io.Writer, s journal.Summary, asJSON bool) error {
	if asJSON {
		return writeJSON(out, s)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Opens\t%d\n", s.Opens)
	fmt.Fprintf(w, "Closes\t%d\n", s.Closes)
	fmt.Fprintf(w, "Wins / losses\t%d / %d\n", s.Wins, s.Losses)
	fmt.Fprintf(w, "Win rate\t%.1f%%\n", s.WinRate)
	fmt.Fprintf(w, "Net P/L\t%.2f\n", s.NetPnL)
	fmt.Fprintf(w, "Best / worst\t%.2f / %.2f\n", s.BestTrade, s.WorstTrade)
	fmt.Fprintf(w, "Avg holding days\t%.2f\n", s.AvgHoldingDays)
	fmt.Fprintf(w, "Stop exits\t%d\n", s.StopExits)
	return w.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
