package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
	"github.com/spf13/cobra"
)

func newDiscoverCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List accounts the signer has funded",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, _ *cobra.Command, a *app) error {
			accounts := a.reclaimer.Discover(ctx)
			return a.out.Accounts(accounts)
		}),
	}
}

func newScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Discover and evaluate accounts without moving funds",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, _ *cobra.Command, a *app) error {
			scanned := a.reclaimer.Discover(ctx)
			reclaimable := a.reclaimer.Evaluate(ctx, scanned)
			return a.out.Scan(reclaimable, a.reclaimer.GetStats(scanned, reclaimable))
		}),
	}
}

func newReclaimCmd(opts *options) *cobra.Command {
	var (
		yes    bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Reclaim every eligible account to the treasury",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app) error {
			scanned := a.reclaimer.Discover(ctx)
			reclaimable := a.reclaimer.Evaluate(ctx, scanned)
			stats := a.reclaimer.GetStats(scanned, reclaimable)

			if len(reclaimable) == 0 || dryRun {
				return a.out.Scan(reclaimable, stats)
			}
			if !yes {
				prompt := fmt.Sprintf("Reclaim %d accounts (%s) to %s? [y/N] ",
					len(reclaimable), formatSOL(stats.ReclaimableLamports), a.reclaimer.TreasuryAddress())
				if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), prompt) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
					return nil
				}
			}

			results := a.reclaimer.ReclaimBatch(ctx, reclaimable)
			if err := a.out.Results(results); err != nil {
				return err
			}
			return failedError(results)
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not prompt for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be reclaimed without sending transactions")
	return cmd
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one full discover, evaluate and reclaim cycle",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, _ *cobra.Command, a *app) error {
			cycle := a.reclaimer.RunFullCycle(ctx)
			if err := a.out.Cycle(cycle, a.reclaimer.GetStats(cycle.Scanned, cycle.Reclaimable)); err != nil {
				return err
			}
			return failedError(cycle.Results)
		}),
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show locked and reclaimable rent totals",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, _ *cobra.Command, a *app) error {
			scanned := a.reclaimer.Discover(ctx)
			reclaimable := a.reclaimer.Evaluate(ctx, scanned)
			return a.out.Stats(a.reclaimer.GetStats(scanned, reclaimable))
		}),
	}
}

// confirm asks prompt on w and reads a yes/no answer from r.
func confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprint(w, prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// failedError reports failed reclaim attempts so the process exits non-zero.
func failedError(results []reclaimer.ReclaimResult) error {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d reclaims failed, see the audit log for details", failed, len(results))
}
