package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/malbeclabs/rentreclaim/api/handlers"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/metrics"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/scheduler"
	"github.com/malbeclabs/rentreclaim/slack/bot"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	sentryFlushWait   = 2 * time.Second
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		allowedOrigins []string
		trustProxy     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, metrics, cycle scheduler and optional Slack bot",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, _ *cobra.Command, a *app) error {
			return serve(ctx, a, allowedOrigins, trustProxy)
		}),
	}
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", nil, "CORS origins allowed to call the API (defaults to localhost)")
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy-headers", false, "Take the client address from X-Forwarded-For/X-Real-IP (only behind a trusted proxy)")
	return cmd
}

func serve(ctx context.Context, a *app, allowedOrigins []string, trustProxy bool) error {
	log := a.log
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	if a.cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              a.cfg.SentryDSN,
			Environment:      a.cfg.SentryEnvironment,
			Release:          version,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(sentryFlushWait)
		log.Info("sentry initialized", "environment", a.cfg.SentryEnvironment)
	}

	var slackBot *bot.Bot
	sched, err := scheduler.New(scheduler.Config{
		Logger:     log,
		Runner:     a.reclaimer,
		Interval:   a.cfg.ScanInterval,
		RunOnStart: true,
		OnCycle: func(ctx context.Context, cycle reclaimer.CycleResult) {
			if slackBot != nil {
				slackBot.NotifyCycle(ctx, cycle)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if a.cfg.SlackEnabled() {
		slackBot, err = bot.New(bot.Config{
			Logger:    log,
			BotToken:  a.cfg.SlackBotToken,
			AppToken:  a.cfg.SlackAppToken,
			ChannelID: a.cfg.SlackChannelID,
			Reclaimer: a.reclaimer,
			Cycles:    sched,
		})
		if err != nil {
			return fmt.Errorf("failed to create slack bot: %w", err)
		}
	} else {
		log.Info("slack bot disabled, SLACK_BOT_TOKEN and SLACK_APP_TOKEN not set")
	}

	server, err := handlers.NewServer(handlers.Config{
		Logger:         log,
		Reclaimer:      a.reclaimer,
		Cycles:         sched,
		AllowedOrigins: allowedOrigins,
		TrustProxy:     trustProxy,
		Build:          handlers.BuildInfo{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listenAndServe(ctx, log, "api", a.cfg.HTTPAddr, server.Handler())
	})

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error {
			return listenAndServe(ctx, log, "prometheus metrics", a.cfg.MetricsAddr, mux)
		})
	}

	g.Go(func() error {
		return sched.Run(ctx)
	})

	if slackBot != nil {
		g.Go(func() error {
			return slackBot.Run(ctx)
		})
	}

	log.Info("rent reclaimer running",
		"version", version,
		"signer", a.reclaimer.SignerAddress(),
		"treasury", a.reclaimer.TreasuryAddress(),
		"scan_interval", a.cfg.ScanInterval,
		"slack", slackBot != nil,
	)

	err = g.Wait()
	log.Info("rent reclaimer shutting down", "reason", context.Cause(ctx))
	return err
}

// listenAndServe serves h on addr until ctx is done, then shuts down
// gracefully.
func listenAndServe(ctx context.Context, log *slog.Logger, name, addr string, h http.Handler) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start %s listener: %w", name, err)
	}
	log.Info(name+" server listening", "address", listener.Addr().String())

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s server shutdown: %w", name, err)
		}
		return nil
	}
}
