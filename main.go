package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"marketfeed/config"
	"marketfeed/internal/api"
	"marketfeed/internal/history"
	"marketfeed/internal/metrics"
	"marketfeed/internal/subscription"
	"marketfeed/logger"
)

const defaultConfigPath = "config/config.yml"

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath, defaultConfigPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":       cfg.App.Name,
		"version":       cfg.App.Version,
		"environment":   env,
		"use_real_data": cfg.History.UseRealData,
	}).Info("starting marketfeed")
	if config.IsProductionLike(env) && !cfg.History.UseRealData {
		log.WithComponent("main").Warn("history starts in synthetic mode; set history.use_real_data for live providers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	if cfg.Metrics.Prometheus {
		metrics.Init()
	}
	metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)

	feeds := subscription.NewManager(
		subscription.NewWebsocketDialer(cfg.Feed.ConnectTimeout),
		subscription.OptionsFromConfig(cfg),
	)
	hist := history.NewService(cfg)
	server := api.NewServer(cfg, hist, feeds, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, cfg.App.Name)
	}()

	serverDone := false
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		serverDone = true
		if err != nil {
			log.WithError(err).Error("api server stopped")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info("closing market data subscriptions")
	if err := feeds.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("subscriptions did not close cleanly")
	}

	if !serverDone {
		select {
		case <-errCh:
		case <-shutdownCtx.Done():
			log.Warn("graceful shutdown timeout exceeded")
		}
	}

	log.Info("marketfeed stopped")
}
