package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bandpay/internal/config"
	"bandpay/internal/db"
	"bandpay/internal/jobs"
	"bandpay/internal/logger"
	"bandpay/internal/notify"
	"bandpay/internal/server"
	"bandpay/internal/transaction"
	"bandpay/internal/wristband"
)

func main() {
	logger.Init()
	logger.Info("Starting BandPay application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	incidents := notify.New(cfg.RedisAddr)
	defer incidents.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go incidents.Start(ctx)

	sweeper := jobs.NewRunner(
		transaction.NewRepository(database),
		wristband.NewRepository(database),
	)
	if err := sweeper.Start(); err != nil {
		logger.Fatalf("Failed to start sweepers: %v", err)
	}

	srv := server.New(database, cfg, incidents)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	sweeper.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
