package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/llm-mediator/internal/auth"
	"github.com/tjfontaine/llm-mediator/internal/config"
	"github.com/tjfontaine/llm-mediator/internal/gate"
	"github.com/tjfontaine/llm-mediator/internal/mediator"
	"github.com/tjfontaine/llm-mediator/internal/metrics"
	"github.com/tjfontaine/llm-mediator/internal/monitor"
	"github.com/tjfontaine/llm-mediator/internal/openai"
	"github.com/tjfontaine/llm-mediator/internal/server"
	"github.com/tjfontaine/llm-mediator/internal/telemetry"
	"github.com/tjfontaine/llm-mediator/internal/tokens"
	"github.com/tjfontaine/llm-mediator/internal/upstream"
)

// mountPrefix is where the OpenAI surface is exposed.
const mountPrefix = "/api/openai"

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the mediator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger(cfg.Log.Level)
			slog.SetDefault(logger)

			shutdown, err := telemetry.InitTracer(telemetry.Options{
				Enabled:     cfg.Telemetry.Enabled,
				ServiceName: cfg.Telemetry.ServiceName,
			}, logger)
			if err != nil {
				return fmt.Errorf("initialize tracer: %w", err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
				}
			}()

			srv := buildServer(cfg, logger, prometheus.NewRegistry())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	})
}

// buildServer assembles the mediator from resolved configuration. A nil
// registry disables /metrics.
func buildServer(cfg *config.Config, logger *slog.Logger, registry *prometheus.Registry) *server.Server {
	var collector *metrics.Collector
	if cfg.Metrics.Enabled && registry != nil {
		collector = metrics.NewCollector(registry)
	}

	forwarder := upstream.New(upstream.Options{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		OrgID:   cfg.Upstream.OrgID,
		Timeout: cfg.Upstream.Timeout,
	})

	hashes := append([]string(nil), cfg.Auth.AccessCodeHashes...)
	for _, code := range cfg.Auth.AccessCodes {
		hashes = append(hashes, auth.HashAccessCode(code))
	}
	authenticator := auth.NewAuthenticator(auth.Options{
		CodeHashes:     hashes,
		HideUserAPIKey: cfg.Auth.HideUserAPIKey,
		HasServerKey:   forwarder.HasServerKey(),
	})

	opts := mediator.Options{
		Paths:        gate.OpenAIPaths(),
		Auth:         authenticator,
		Forwarder:    forwarder,
		Filter:       openai.NewFilterPolicy(cfg.Models.DisableAdvanced),
		Logger:       logger,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}

	srvOpts := server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         logger,
	}
	if collector != nil {
		opts.Metrics = collector
		srvOpts.Metrics = collector.Handler()
	}

	var mon *monitor.Monitor
	if cfg.MonitorEnabled() {
		monOpts := monitor.Options{
			Notifier:    monitor.NewWebhookNotifier(cfg.Monitor.WebhookURL, nil),
			Counter:     tokens.NewCounter(),
			Logger:      logger,
			MaxInFlight: int64(cfg.Monitor.MaxInFlight),
			Timeout:     cfg.Monitor.Timeout,
		}
		if collector != nil {
			monOpts.Recorder = collector
		}
		mon = monitor.New(monOpts)
		opts.Monitor = mon
		logger.Info("conversation monitor enabled", slog.Int("max_in_flight", cfg.Monitor.MaxInFlight))
	}

	srv := server.New(srvOpts)
	srv.Mount(mountPrefix+"/*", mediator.NewHandler(opts))
	if mon != nil {
		srv.OnShutdown(mon.Wait)
	}
	return srv
}
