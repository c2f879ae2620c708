// Command server runs the lead router.
//
// # Usage
//
//	server --config config.yaml --port 8080
//
// # Configuration
//
// The server can be configured via:
// - A YAML config file
// - Command-line flags
// - Environment variables (LEADROUTER_*)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vendalink/leadrouter/db/migrate"
	"github.com/vendalink/leadrouter/internal/api"
	"github.com/vendalink/leadrouter/internal/cache"
	"github.com/vendalink/leadrouter/internal/config"
	"github.com/vendalink/leadrouter/internal/distribution"
	"github.com/vendalink/leadrouter/internal/metrics"
	"github.com/vendalink/leadrouter/internal/secrets"
	"github.com/vendalink/leadrouter/internal/service"
	"github.com/vendalink/leadrouter/internal/store"
	"github.com/vendalink/leadrouter/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		port       = flag.Int("port", 0, "HTTP server port (overrides config)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("leadrouter-server v0.1.0")
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// Resolve credentials not present in config or environment
	secretStore, err := secrets.NewSecretStore(secrets.ConfigFromEnv(), logger)
	if err != nil {
		logger.Error("failed to initialize secrets backend", "error", err)
		os.Exit(1)
	}
	defer secretStore.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.Database.URL == "" {
		url, err := secretStore.GetSecret(ctx, secrets.SecretDatabaseURL)
		if err != nil || url == "" {
			logger.Error("no database URL configured", "error", err)
			os.Exit(1)
		}
		cfg.Database.URL = url
	}
	if cfg.Redis.URL == "" {
		if url, err := secretStore.GetSecret(ctx, secrets.SecretRedisURL); err == nil {
			cfg.Redis.URL = url
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := store.NewStoreFromURL(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Apply schema migrations
	if err := migrate.Run(ctx, db.Pool(), logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Redis cache is optional; without it, reads hit the database and batch
	// runs rely on the scheduler not overlapping.
	var responseCache *cache.Cache
	if cfg.Redis.URL != "" {
		responseCache, err = cache.New(cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			defer responseCache.Close()
			logger.Info("connected to redis")
		}
	}

	promMetrics := metrics.New()
	healthCollector := metrics.NewHealthCollector()

	distributor := distribution.NewDistributor(db, promMetrics, cfg.Distribution.BatchLimit, logger)
	svc := service.NewService(db, distributor, responseCache, promMetrics, logger)

	apiServer := api.NewServer(svc, healthCollector, promMetrics, logger)
	apiServer.SetIngestRate(cfg.Distribution.IngestRatePerSecond, cfg.Distribution.IngestBurst)
	if cfg.Server.RequireIngestAuth {
		apiServer.EnableIngestAuth()
	}

	// Pending retry worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	pendingWorker := worker.NewPendingWorker(db, svc, worker.PendingWorkerConfig{
		Schedule:    cfg.Distribution.PendingRetrySchedule,
		PassTimeout: config.BatchLockTTL,
	}, logger)
	if err := pendingWorker.Start(workerCtx); err != nil {
		logger.Error("failed to start pending worker", "error", err)
		os.Exit(1)
	}
	defer pendingWorker.Stop()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
