package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlopes/slack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sgerhart/webby/internal/api"
	"github.com/sgerhart/webby/internal/app"
	"github.com/sgerhart/webby/internal/audit"
	"github.com/sgerhart/webby/internal/config"
	"github.com/sgerhart/webby/internal/logging"
	"github.com/sgerhart/webby/internal/metrics"
	"github.com/sgerhart/webby/internal/slackbot"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting webby",
		"http_addr", cfg.HTTPAddr,
		"config_file", cfg.File,
		"event_source", cfg.EventSource,
		"event_lookback", cfg.EventLookback.String(),
		"ownership_backend", cfg.OwnershipBackend,
		"target_provider", cfg.TargetProvider,
		"async_website", cfg.AsyncWebsite,
		"audit_enabled", cfg.NATSURL != "",
		"hot_reload", cfg.HotReload)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// Slack client and identity
	slackClient := slack.New(cfg.SlackToken)
	poster := slackbot.NewPoster(slackClient, logger)

	var slackReady bool
	var botUserID string
	if cfg.SlackToken != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		botUserID, err = slackbot.Identity(ctx, slackClient)
		cancel()
		if err != nil {
			logger.Warn("Slack auth check failed", "error", err)
		} else {
			slackReady = true
			logger.Info("Slack auth check succeeded", "bot_user_id", botUserID)
		}
	} else {
		logger.Warn("SLACK_TOKEN not set, replies cannot be posted")
	}

	// Audit publisher
	var auditor audit.Publisher = audit.NopPublisher{}
	var natsPublisher *audit.NATSPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err = audit.NewNATSPublisher(cfg.NATSURL, cfg.AuditSubject, m, logger)
		if err != nil {
			logger.Error("Failed to create audit publisher", "error", err)
			os.Exit(1)
		}
		auditor = natsPublisher
	}
	defer auditor.Close()

	dispatcher, err := app.NewDispatcher(cfg, poster, auditor, m, logger)
	if err != nil {
		logger.Error("Failed to build dispatcher", "error", err)
		os.Exit(1)
	}
	holder := app.NewHolder(dispatcher)

	// Hot reload swaps the dispatcher; listener settings need a restart
	configManager := config.NewManager(cfg, logger)
	configManager.Subscribe(func(next *config.Config) {
		d, err := app.NewDispatcher(next, poster, auditor, m, logger)
		if err != nil {
			logger.Error("Failed to apply configuration", "error", err)
			return
		}
		holder.Swap(d)
		logger.Info("Configuration applied",
			"event_source", next.EventSource,
			"ownership_backend", next.OwnershipBackend,
			"async_website", next.AsyncWebsite)
	})
	if err := configManager.Start(); err != nil {
		logger.Error("Failed to start configuration watcher", "error", err)
		os.Exit(1)
	}
	defer configManager.Stop()

	// HTTP API
	slackHandler := slackbot.NewHandler(holder, poster, slackbot.Options{
		SigningSecret: cfg.SlackSigningSecret,
		BotUserID:     botUserID,
		DedupeCap:     cfg.DedupeCap,
	}, m, logger)

	server := api.NewServer(slackHandler, registry, logger)
	server.AddCheck("slack", func() bool { return slackReady || cfg.SlackToken == "" })
	if natsPublisher != nil {
		server.AddCheck("nats", natsPublisher.IsReady)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("webby started successfully")
	<-sigChan

	logger.Info("Shutting down webby...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Let background website lookups post their replies
	done := make(chan struct{})
	go func() {
		holder.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Background lookups still running at shutdown")
	}

	logger.Info("webby stopped")
}
