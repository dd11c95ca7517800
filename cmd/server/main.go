// Package main provides the entry point for the coverfit API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/maauso/coverfit/internal/bootstrap"
	"github.com/maauso/coverfit/internal/config"
	"github.com/maauso/coverfit/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting coverfit API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("default_blur_intensity", cfg.DefaultBlurIntensity),
		slog.Duration("batch_delay", cfg.BatchDelay),
		slog.Duration("result_ttl", cfg.ResultTTL),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("watch_enabled", cfg.WatchEnabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.ConvertService, deps.Presets, logger,
		server.WithDefaultBlur(cfg.DefaultBlurIntensity),
	)
	router := server.NewRouter(handlers, logger, server.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background workers share one context, cancelled on shutdown.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		deps.RunJanitor(bgCtx, bootstrap.DefaultJanitorInterval)
	}()

	if deps.Watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := deps.Watcher.Run(bgCtx); err != nil {
				logger.Error("folder watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	stopBackground()
	wg.Wait()

	logger.Info("server stopped gracefully")
	return nil
}
