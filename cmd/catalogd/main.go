// cmd/catalogd/main.go
// Package main implements the entry point for the catalog service.
// It initializes all components and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edumaster/catalogd/internal/config"
	"github.com/edumaster/catalogd/internal/dispatch"
	"github.com/edumaster/catalogd/internal/event"
	"github.com/edumaster/catalogd/internal/media"
	"github.com/edumaster/catalogd/internal/metrics"
	"github.com/edumaster/catalogd/internal/server"
	"github.com/edumaster/catalogd/internal/storage"
	"github.com/edumaster/catalogd/internal/telemetry"
)

const version = "1.0.0"

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("catalogd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	tp, err := telemetry.InitTracer(os.Stderr, version, cfg.Env == "dev")
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx, tp)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		store, err = storage.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("initialize postgres storage: %w", err)
		}
	} else {
		store = storage.NewMemory()
	}
	store = storage.Instrument(store, metrics.NewMetrics())
	defer store.Close()

	if cfg.SeedFile != "" {
		if err := storage.LoadSeed(ctx, store, cfg.SeedFile); err != nil {
			return err
		}
		logger.Info("catalog seeded", "file", cfg.SeedFile)
	}

	// Content URLs in object storage are presigned; everything else passes through
	var resolver dispatch.URLResolver = media.Passthrough{}
	if cfg.S3Endpoint != "" || cfg.S3AccessKey != "" {
		s3c, err := media.NewS3Client(ctx, cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.PresignTTL)
		if err != nil {
			return fmt.Errorf("initialize S3 client: %w", err)
		}
		resolver = s3c
	}

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisher(cfg.NATSURL)
	defer pub.Close()

	mux, err := server.NewMux(server.Options{
		Store:              store,
		Publisher:          pub,
		Resolver:           resolver,
		Links:              dispatch.Links{PlayerOrigin: cfg.PlayerOrigin, FallbackURL: cfg.FallbackURL},
		TransitionDelay:    cfg.TransitionDelay,
		SessionIdleTTL:     cfg.SessionIdleTTL,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return err
	}
	defer mux.Close()

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
