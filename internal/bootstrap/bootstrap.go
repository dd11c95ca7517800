// Package bootstrap provides dependency initialization for the coverfit server and CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/coverfit/internal/config"
	"github.com/maauso/coverfit/internal/job"
	"github.com/maauso/coverfit/internal/media"
	"github.com/maauso/coverfit/internal/preset"
	"github.com/maauso/coverfit/internal/storage"
	"github.com/maauso/coverfit/internal/watcher"
)

// DefaultJanitorInterval is how often expired jobs are pruned.
const DefaultJanitorInterval = 10 * time.Minute

// Dependencies holds all initialized dependencies for the application.
type Dependencies struct {
	ConvertService *job.ConvertService
	Presets        *preset.Table
	Storage        storage.Storage
	// Watcher is nil unless WATCH_DIR is set.
	Watcher *watcher.Watcher

	resultTTL time.Duration
	logger    *slog.Logger
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	presets, err := preset.LoadFile(cfg.PresetsFile)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	logger.Info("preset table loaded",
		slog.Int("presets", presets.Len()),
		slog.String("file", cfg.PresetsFile),
	)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := job.NewConvertService(
		job.NewMemoryRepository(),
		media.NewCompositor(logger),
		store,
		logger,
		job.WithItemDelay(cfg.BatchDelay),
	)

	deps := &Dependencies{
		ConvertService: svc,
		Presets:        presets,
		Storage:        store,
		resultTTL:      cfg.ResultTTL,
		logger:         logger,
	}

	if cfg.WatchEnabled() {
		intake := watcher.NewIntake(svc, presets, cfg.DefaultBlurIntensity, cfg.S3Enabled(), logger)
		w, err := watcher.New(cfg.WatchDir, intake.Handle, watcher.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create folder watcher: %w", err)
		}
		deps.Watcher = w
	}

	return deps, nil
}

// RunJanitor prunes expired jobs every interval until ctx is cancelled.
// It returns immediately when results never expire.
func (d *Dependencies) RunJanitor(ctx context.Context, interval time.Duration) {
	if d.resultTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.ConvertService.PruneExpired(ctx, d.resultTTL); err != nil {
				d.logger.Warn("failed to prune expired jobs", slog.String("error", err.Error()))
			}
		}
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
		}
		s3Store, err := storage.NewS3Storage(cfg.OutputDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", cfg.OutputDir),
	)
	return localStore, nil
}
