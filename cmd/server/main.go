package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sealdrop/internal/server/api"
	"sealdrop/internal/server/config"
	"sealdrop/internal/server/database"
	"sealdrop/internal/server/service"
	"sealdrop/internal/server/storage"

	"github.com/joho/godotenv"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config (.env first, then the environment)
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"max_file_size", cfg.MaxFileSize,
		"sweep_interval", cfg.SweepInterval,
	)

	// Open the record store: postgres when configured, in-memory otherwise
	ctx := context.Background()
	var records database.RecordStore
	if cfg.DatabaseURL != "" {
		db, err := database.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := db.RunMigrations(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations complete")
		records = database.NewRepository(db)
	} else {
		slog.Warn("no DATABASE_URL set, using in-memory record store")
		records = database.NewMemory()
	}
	defer records.Close()

	// Initialize blob storage
	blobs := storage.NewFileSystemStore(cfg.StoragePath)
	if err := blobs.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("blob storage initialized", "path", cfg.StoragePath)

	// Share ledger
	ledger := service.NewLedger(records, blobs, cfg)

	// Start periodic sweep; the first pass runs immediately to reclaim
	// shares that lapsed while the process was down.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := storage.NewSweepService(ledger, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(ledger, records)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop sweep service
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
