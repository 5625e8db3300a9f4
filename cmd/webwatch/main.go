package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aleister1102/webwatch/internal/browser"
	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/logger"
	"github.com/aleister1102/webwatch/internal/notifier"
	"github.com/aleister1102/webwatch/internal/runner"
	"github.com/aleister1102/webwatch/internal/scheduler"
	"github.com/aleister1102/webwatch/internal/statestore"
	"github.com/aleister1102/webwatch/internal/status"
)

func main() {
	settingsFile := flag.String("config", "", "Path to an optional YAML/JSON settings file. Environment variables take precedence.")
	settingsFileAlias := flag.String("c", "", "Alias for --config")
	chromePath := flag.String("chrome", "", "Path to the Chrome/Chromium binary. Auto-detected if not set.")
	flag.Parse()

	if *settingsFile == "" && *settingsFileAlias != "" {
		*settingsFile = *settingsFileAlias
	}

	settings, err := config.LoadSettings(*settingsFile)
	if err != nil {
		log.Fatalf("[FATAL] Could not load settings: %v", err)
	}

	zLogger, err := logger.New(settings.Log)
	if err != nil {
		log.Fatalf("[FATAL] Could not initialize logger: %v", err)
	}

	zLogger.Info().
		Str("config_dir", settings.ConfigDir).
		Str("state_dir", settings.StateDir).
		Int("health_port", settings.HealthPort).
		Msg("webwatch starting")

	b, err := browser.Launch(browser.LaunchOptions{
		ChromePath:    *chromePath,
		ProxyServer:   settings.ProxyServer,
		ProxyUsername: settings.ProxyUsername,
		ProxyPassword: settings.ProxyPassword,
	}, zLogger)
	if err != nil {
		zLogger.Fatal().Err(err).Msg("Failed to launch browser")
	}

	store, err := statestore.NewStore(settings.StateDir, zLogger)
	if err != nil {
		zLogger.Fatal().Err(err).Msg("Failed to open state store")
	}

	history, err := statestore.OpenHistory(filepath.Join(settings.StateDir, "history.db"), zLogger)
	if err != nil {
		zLogger.Warn().Err(err).Msg("Run history unavailable, continuing without it")
		history = nil
	}

	router := notifier.NewRouter(settings, &http.Client{Timeout: 20 * time.Second}, zLogger)
	watchRunner := runner.NewRunner(b, store, history, router, settings, zLogger)
	engine := scheduler.NewEngine(settings, watchRunner, zLogger)

	statusServer := status.NewServer(settings.HealthPort, engine, watchRunner, router, history, zLogger)
	go statusServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		zLogger.Fatal().Err(err).Msg("Scheduler failed to start")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zLogger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	engine.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		zLogger.Warn().Err(err).Msg("Status server shutdown failed")
	}

	if history != nil {
		_ = history.Close()
	}
	if err := b.Close(); err != nil {
		zLogger.Warn().Err(err).Msg("Browser close failed")
	}

	zLogger.Info().Msg("webwatch stopped")
}
