// Kestrel - Loan risk scoring that deploys in 60 seconds.
// Copyright (c) 2025 openlend
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openlend/kestrel/internal/api"
	"github.com/openlend/kestrel/internal/bus"
	"github.com/openlend/kestrel/internal/cache"
	"github.com/openlend/kestrel/internal/decision"
	"github.com/openlend/kestrel/internal/domain"
	"github.com/openlend/kestrel/internal/history"
	"github.com/openlend/kestrel/internal/repository"
	"github.com/openlend/kestrel/internal/scoring"
	"github.com/openlend/kestrel/internal/service"
	"github.com/openlend/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize History Service (backs customer.recentApplications)
	historySvc := history.NewService(repo, cacheImpl)
	slog.Info("history service initialized", "window", cfg.Scoring.HistoryWindow)

	// Initialize Scoring Engine
	engine, err := scoring.NewEngine(historySvc.Getter(), cfg.Scoring.HistoryWindow)
	if err != nil {
		slog.Error("failed to initialize scoring engine", "error", err)
		os.Exit(1)
	}

	ruleCount, err := countEnabledRules(ctx, repo)
	if err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring engine initialized", "enabled_rules", ruleCount)

	// Initialize Decision Processor
	processor := decision.NewProcessor()
	slog.Info("decision processor initialized",
		"medium_threshold", decision.MediumThreshold,
		"high_threshold", decision.HighThreshold,
	)

	// Initialize Loan Service
	loans := service.NewLoanService(repo, cacheImpl, busImpl, engine, processor, historySvc, cfg.Cache.RuleSnapshotTTL, cfg.Scoring.HistoryWindow)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, cacheImpl, loans)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, loans, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides lets deployments tweak the chosen tier config without a
// config file.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_SEED_RULES"); v != "" {
		cfg.Repository.SeedRules = v == "true"
	}
	if v := os.Getenv("KESTREL_HISTORY_WINDOW_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Scoring.HistoryWindow = time.Duration(days) * 24 * time.Hour
		}
	}
}

// countEnabledRules sanity-checks rule loading at startup.
func countEnabledRules(ctx context.Context, repo domain.Repository) (int, error) {
	rules, err := repo.ListEnabledRules(ctx)
	if err != nil {
		return 0, err
	}
	if len(rules) == 0 {
		slog.Info("no enabled rules in database - configure via POST /rules API")
	}
	return len(rules), nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║        Loan Risk Scoring Engine           ║")
	fmt.Println("  ║     Every application, explained.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /customers         - Register a customer")
	fmt.Println("    GET  /customers/{id}    - Get customer by ID")
	fmt.Println("    POST /loans             - Apply for a loan (scored synchronously)")
	fmt.Println("    GET  /loans/{id}        - Get loan application by ID")
	fmt.Println("    GET  /rules             - List all scoring rules")
	fmt.Println("    POST /rules             - Create a new rule")
	fmt.Println("    PUT  /rules/{id}        - Update a rule")
	fmt.Println("    DELETE /rules/{id}      - Disable a rule")
	fmt.Println("    POST /rules/reload      - Drop the cached rule snapshot")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
