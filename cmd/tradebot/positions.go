package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trading-enginev1/internal/config"
	"trading-enginev1/internal/model"
	sqlitestore "trading-enginev1/internal/store/sqlite"
)

func newPositionsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List the open positions in the configured position store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}

			var db *sqlitestore.DB
			if cfg.Persistence.PositionsStore == config.StoreSQLite {
				if db, err = openSQLite(cfg.Persistence.SQLitePath); err != nil {
					return err
				}
				defer db.Close()
			}
			repo, err := openPositionRepo(cfg, db)
			if err != nil {
				return err
			}
			positions, err := repo.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			return printPositions(cmd.OutOrStdout(), positions, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printPositions(out io.Writer, positions map[string]model.Position, asJSON bool) error {
	list := make([]model.Position, 0, len(positions))
	for sym, p := range positions {
		if p.Symbol == "" {
			p.Symbol = sym
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })

	if asJSON {
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "no open positions")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIDE\tSHARES\tENTRY\tEXTREME\tSTOP%\tOPENED")
	for _, p := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.1f\t%s\n",
			p.Symbol, p.Direction, p.Shares, p.EntryPrice, p.ExtremePrice, p.TrailingStopPct,
			p.EntryTime.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
