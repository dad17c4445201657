package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"trading-enginev1/internal/execution"
	"trading-enginev1/internal/metrics"
	"trading-enginev1/internal/strategy"
)

const (
	livenessInterval = 15 * time.Second
	statusInterval   = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tick the configured symbols during market hours",
		Long: `Run polls the latest indicator snapshot of every configured symbol once
per tick interval while the market session is open, applies the consensus
decision and serves the HTTP API (health, positions, trades, metrics and the
live trade stream).

With --once every symbol is evaluated a single time and the results printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log, appOptions{})
			if err != nil {
				return err
			}
			if once {
				return a.runOnce(ctx, cmd.OutOrStdout(), time.Now())
			}
			return a.run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "evaluate every symbol once and exit")
	return cmd
}

// runOnce evaluates every symbol a single time and prints the results.
func (a *app) runOnce(ctx context.Context, out io.Writer, now time.Time) error {
	results, err := a.engine.RunOnce(ctx, a.provider, nil, now)
	printResults(out, results)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return multierr.Append(err, a.shutdown(shutdownCtx))
}

// run ticks until ctx is cancelled, then shuts down in order: HTTP server,
// history writer, engine.
func (a *app) run(ctx context.Context) error {
	session, err := a.cfg.Session()
	if err != nil {
		return err
	}
	start := time.Now()

	srv := metrics.NewServer(a.cfg.Server.MetricsAddr, a.router())
	srv.Start()

	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		a.history.Run(bgCtx)
	}()
	a.health.StartLivenessChecker(ctx, a.redisClient(), a.sqlDB(), livenessInterval)
	a.hub.StartStatusBroadcast(ctx, session, statusInterval, start)

	ticks := make(chan execution.Tick, len(a.cfg.Symbols))
	feed := execution.NewFeed(a.provider, session, a.cfg.TickInterval.Duration, a.cfg.Symbols,
		execution.WithFeedMetrics(a.metrics),
		execution.WithFeedHealth(a.health),
		execution.WithFeedLogger(a.log.With("component", "feed")),
	)
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	feedErr := make(chan error, 1)
	go func() { feedErr <- feed.Run(feedCtx, ticks) }()

	a.log.Info("engine started",
		"mode", a.cfg.Mode,
		"symbols", a.cfg.Symbols,
		"tick_interval", a.cfg.TickInterval.Duration.String(),
		"capital", a.ledger.Capital().StringFixed(2),
		"market", session.Status(start),
	)

	runErr := a.engine.Run(ctx, ticks)
	if runErr != nil {
		a.log.Error("engine stopped", "error", runErr)
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	stopFeed()
	err = multierr.Combine(runErr, <-feedErr, srv.Stop(shutdownCtx))
	stopBackground()
	bg.Wait()
	err = multierr.Append(err, a.shutdown(shutdownCtx))
	a.log.Info("shutdown complete", "capital", a.ledger.Capital().StringFixed(2), "open_positions", len(a.ledger.Positions()))
	return err
}

func printResults(out io.Writer, results []execution.TickResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPRICE\tSIGNAL\tVOTES\tTRADES\tSKIPPED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%d\t%s\n",
			r.Symbol, r.Price, r.Signal, formatVotes(r), len(r.Trades()), dash(r.Skipped))
	}
	w.Flush()
}

func formatVotes(r execution.TickResult) string {
	buy, sell, hold := strategy.Tally(r.Votes)
	return fmt.Sprintf("%dB/%dS/%dH", buy, sell, hold)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
