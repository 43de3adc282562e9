package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maps-scraper/config"
	perr "maps-scraper/errors"
	"maps-scraper/pipeline"
	"maps-scraper/scraper/maps"
	"maps-scraper/services"
	"maps-scraper/storage"
	"maps-scraper/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger := utils.NewLoggerWithOptions(utils.LogOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})

	req, err := config.ParseRequest(os.Args[1:], cfg.DefaultQuery, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return perr.ExitOK
		}
		logger.Error("%v", err)
		return perr.ExitCode(err)
	}
	if !req.DryRun {
		if err := cfg.Validate(); err != nil {
			logger.Error("%v", err)
			return perr.ExitCode(err)
		}
	}

	logger.Info("=== Maps Scraping System starting ===")
	if !cfg.EnvFileLoaded {
		logger.Debug("No .env file found, using the process environment")
	}
	logger.Info("Config: max results: %d | concurrency: %d | nav interval: %dms | retries: %d",
		req.MaxResults, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.MaxRetries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sheet storage.SheetBackend
	var memSheet *storage.MemorySheet
	if req.DryRun {
		logger.Info("Dry run: rows are kept in memory and printed")
		memSheet = storage.NewMemorySheet(nil)
		sheet = memSheet
	} else {
		gs, err := storage.NewGoogleSheet(ctx, cfg.SheetID, cfg.SheetCredsPath, cfg.SheetTab, logger.Named("sheet"))
		if err != nil {
			logger.Error("Failed to open the Google Sheet: %v", err)
			return perr.ExitCode(err)
		}
		sheet = gs
	}

	retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: logger}
	stages := pipeline.Stages{
		Reconciler:  storage.NewReconciler(sheet, retry, logger.Named("sheet")),
		SnapshotDir: cfg.SnapshotDir,
	}

	if !req.DryRun {
		db, err := storage.OpenRelational(ctx, cfg, logger.Named("db"))
		switch {
		case err != nil:
			logger.Warn("Secondary store unavailable, continuing without it: %v", err)
		case db != nil:
			defer db.Close()
			stages.Secondary = db
		}
	}

	if req.ResumeFrom == "" {
		session, err := maps.Open(ctx, maps.OptionsFromConfig(cfg, req.Headless), logger.Named("session"))
		if err != nil {
			logger.Error("Failed to start the browser: %v", err)
			return perr.ExitCode(err)
		}
		defer session.Close()

		var mx services.MXChecker
		if cfg.EnrichVerifyMX {
			mx = services.NewDNSMXChecker()
		}
		fetcher := services.NewFallbackFetcher(session, services.NewHTTPFetcher(cfg.EnrichTimeout), logger.Named("fetch"))

		stages.Acquirer = maps.New(session, services.NewCleaner(logger), maps.ScraperOptions{
			DetailTimeout: 8 * time.Second,
		}, logger.Named("maps"))
		stages.Enricher = services.NewEnricher(fetcher, mx, services.EnricherOptions{
			MaxConcurrency: cfg.MaxConcurrency,
			RateLimitMs:    cfg.RateLimitMs,
			Timeout:        cfg.EnrichTimeout,
			ContactPages:   2,
		}, logger.Named("enricher"))
	}

	summary, err := pipeline.NewRunner(stages, logger).Run(ctx, req)
	if summary != nil {
		services.NewInsightService(logger).Print(os.Stdout, summary)
	}
	if memSheet != nil && err == nil {
		fmt.Println()
		if pErr := memSheet.Print(os.Stdout); pErr != nil {
			logger.Warn("Could not print dry-run rows: %v", pErr)
		}
	}

	if err != nil {
		logger.Error("Run failed (%s): %v", perr.KindOf(err), err)
	}
	return perr.ExitCode(err)
}
