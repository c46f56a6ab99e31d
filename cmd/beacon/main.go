package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/beacon-notify/beacon/internal/app"
	"github.com/beacon-notify/beacon/internal/client"
	"github.com/beacon-notify/beacon/internal/config"
	"github.com/beacon-notify/beacon/internal/database"
	"github.com/beacon-notify/beacon/internal/imagecache"
	"github.com/beacon-notify/beacon/internal/logging"
	"github.com/beacon-notify/beacon/internal/notify"
	"github.com/beacon-notify/beacon/internal/registry"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	// Load configuration
	cfg := config.Default()

	// Try default config paths if not specified
	if *configPath == "" {
		for _, path := range config.DefaultPaths() {
			if _, err := os.Stat(path); err == nil {
				*configPath = path
				break
			}
		}
	}

	if *configPath != "" {
		if err := config.Load(*configPath, cfg); err != nil {
			log.Printf("Warning: Failed to load config: %v", err)
		}
	}

	// Apply command line overrides
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.EnsureDirs(); err != nil {
		logger.Fatal("Failed to prepare directories", zap.Error(err))
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	cache, err := imagecache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Fatal("Failed to open image cache", zap.Error(err))
	}

	api := client.NewAPIClient(logger)
	supervisor := client.NewSupervisor(logger)
	syncer := registry.NewSyncer(db, api, logger)
	notifier := notify.NewDesktopNotifier(logger, cfg.AppIcon)
	icons := notify.NewCachedIconResolver(api, cache)
	engine := notify.NewEngine(db, notifier, icons, logger)

	state := app.NewState(db, supervisor, syncer, engine, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := state.Start(ctx); err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}
	logger.Info("Beacon started", zap.String("db", cfg.DatabasePath))

	// Run until interrupted
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	state.Shutdown()
}
