package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/audit"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/config"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/ledger"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
	"github.com/malbeclabs/rentreclaim/utils/pkg/logger"
	"github.com/malbeclabs/rentreclaim/utils/pkg/retry"
	"github.com/spf13/cobra"
)

// options holds the global flags that are not part of the reclaimer
// configuration.
type options struct {
	verbose    bool
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "reclaim",
		Short: "Recover rent locked in accounts sponsored by a Solana fee payer",
		Long: `reclaim finds accounts that a signer funded, decides which of them are safe
to reclaim, and moves their balances to a treasury address.

Examples:
  reclaim scan                  # List reclaimable accounts without moving funds
  reclaim reclaim --dry-run     # Show what a reclaim would do
  reclaim reclaim --yes         # Reclaim without prompting
  reclaim serve                 # Run the API, metrics, scheduler and Slack bot`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	config.RegisterFlags(root.PersistentFlags())
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(
		newDiscoverCmd(opts),
		newScanCmd(opts),
		newReclaimCmd(opts),
		newRunCmd(opts),
		newStatsCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// app is the wiring shared by every subcommand.
type app struct {
	log       *slog.Logger
	cfg       *config.Config
	reclaimer *reclaimer.Reclaimer
	audit     *audit.Writer
	out       *output
}

func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	log := logger.New(opts.verbose)

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	ledgerClient, err := ledger.NewRPCClient(ledger.RPCClientConfig{
		Logger:    log,
		RPCURL:    cfg.RPCURL,
		RateLimit: cfg.RPCRateLimit,
		Retry:     retry.DefaultConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}

	auditWriter, err := audit.Open(cfg.AuditDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit logs: %w", err)
	}

	clock := clockwork.NewRealClock()
	rec, err := reclaimer.New(reclaimer.Config{
		Logger:              log,
		Clock:               clock,
		Ledger:              ledgerClient,
		Signer:              cfg.Signer,
		Treasury:            cfg.Treasury,
		MinBalance:          cfg.MinBalance,
		AccountAgeThreshold: cfg.AccountAgeThresholdDays,
		Delay:               reclaimer.FixedDelay{Clock: clock, Interval: cfg.ReclaimPause},
		Audit:               auditWriter,
	})
	if err != nil {
		_ = auditWriter.Close()
		return nil, fmt.Errorf("failed to create reclaimer: %w", err)
	}

	log.Debug("reclaimer configured",
		"signer", rec.SignerAddress(),
		"treasury", rec.TreasuryAddress(),
		"rpc_url", cfg.RPCURL,
		"min_balance", cfg.MinBalance,
		"age_threshold_days", cfg.AccountAgeThresholdDays,
		"audit_dir", cfg.AuditDir,
	)

	return &app{
		log:       log,
		cfg:       cfg,
		reclaimer: rec,
		audit:     auditWriter,
		out:       newOutput(cmd.OutOrStdout(), opts.jsonOutput),
	}, nil
}

func (a *app) Close() {
	if err := a.audit.Close(); err != nil {
		a.log.Warn("failed to close audit logs", "error", err)
	}
}

// withApp wraps a subcommand body with app construction and teardown.
func withApp(opts *options, fn func(ctx context.Context, cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.Close()
		start := time.Now()
		err = fn(cmd.Context(), cmd, a)
		a.log.Debug("command finished", "command", cmd.Name(), "duration", time.Since(start))
		return err
	}
}
