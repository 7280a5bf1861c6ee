package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vidharvest/internal/server"
	"vidharvest/pkg/catalog"
	"vidharvest/pkg/config"
	"vidharvest/pkg/extractor"
	"vidharvest/pkg/feed"
	"vidharvest/pkg/fetch"
	"vidharvest/pkg/logger"
	"vidharvest/pkg/metadata"
	"vidharvest/pkg/ratelimit"
	"vidharvest/pkg/registry"
	"vidharvest/pkg/scheduler"
	"vidharvest/pkg/settings"
	"vidharvest/pkg/storage"
)

const sourceType = "instagram"

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		account    = flag.String("account", "", "override target account for this process")
		once       = flag.Bool("once", false, "run a single extraction pass and exit")
		headful    = flag.Bool("headful", false, "run the browser with a visible window")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *account != "" {
		cfg.Scrape.TargetAccount = *account
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()

	if err := run(cfg, log, *account, *once, *headful); err != nil {
		log.WithError(err).Fatal("vidharvest exited with error")
	}
}

func run(cfg *config.Config, log logger.Logger, accountOverride string, once, headful bool) error {
	dataRoot := cfg.Data.RootDirectory
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return fmt.Errorf("creating data root: %w", err)
	}

	settingsStore, err := settings.Open(filepath.Join(dataRoot, "settings.db"), log)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	defer settingsStore.Close()

	if accountOverride != "" {
		if err := settingsStore.Set(settings.KeyTargetAccount, accountOverride); err != nil {
			return fmt.Errorf("applying account override: %w", err)
		}
	}

	reg, err := registry.Open(filepath.Join(dataRoot, "download_registry.db"), log)
	if err != nil {
		return fmt.Errorf("opening download registry: %w", err)
	}
	defer reg.Close()

	cat, err := catalog.Open(filepath.Join(dataRoot, "content.db"), log)
	if err != nil {
		return fmt.Errorf("opening content catalog: %w", err)
	}
	defer cat.Close()

	store, err := storage.NewManager(dataRoot, sourceType)
	if err != nil {
		return fmt.Errorf("preparing media directory: %w", err)
	}

	throttle := ratelimit.NewTokenBucket(cfg.Scrape.PageLoadsPerMinute, time.Minute)
	source := feed.NewBrowserSource(feed.BrowserOptions{
		UserAgent:   cfg.Scrape.UserAgent,
		FeedTimeout: cfg.Scrape.FeedTimeout,
		PostTimeout: cfg.Scrape.PostTimeout,
		Headless:    !headful,
	}, throttle, log)
	defer source.Close()

	client := fetch.NewClient(cfg.Scrape.DownloadTimeout, cfg.Scrape.UserAgent, log)
	builder := metadata.NewBuilder(cat, log)
	delayer := ratelimit.NewUniformDelayer(settingsStore.WaitBounds)

	pipeline := extractor.New(source, reg, client, store, builder, delayer, sourceType, log)

	if once {
		return runOnce(pipeline, settingsStore, cfg, log)
	}

	coord := scheduler.New(pipeline, settingsStore, log)
	coord.RunTimeout = cfg.Scrape.RunTimeout

	target, err := settingsStore.TargetAccount()
	if err != nil {
		return fmt.Errorf("reading target account: %w", err)
	}
	if target != "" {
		coord.Start()
	} else {
		log.Info("no target account configured, automation idle until set via API")
	}

	srv := server.New(coord, settingsStore, cat, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Server.Address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.InfoWithFields("shutting down", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown was not clean")
	}

	coord.Shutdown()
	log.Info("shutdown complete")
	return nil
}

// runOnce performs a single synchronous pass, useful for cron-driven setups
func runOnce(pipeline *extractor.Extractor, store *settings.Store, cfg *config.Config, log logger.Logger) error {
	target := cfg.Scrape.TargetAccount
	if target == "" {
		stored, err := store.TargetAccount()
		if err != nil {
			return fmt.Errorf("reading target account: %w", err)
		}
		target = stored
	}
	if target == "" {
		return fmt.Errorf("no target account configured")
	}

	maxDownloads, err := store.MaxDownloads()
	if err != nil || maxDownloads <= 0 {
		maxDownloads = cfg.Scrape.MaxNewVideosPerRun
	}

	descriptors := pipeline.Run(context.Background(), target, true, maxDownloads)
	log.InfoWithFields("extraction pass finished", map[string]interface{}{
		"account": target,
		"posts":   len(descriptors),
	})
	return nil
}
