package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/coverfit/internal/job"
	"github.com/maauso/coverfit/internal/media"
	"github.com/maauso/coverfit/internal/preset"
)

// Intake converts dropped files into batch jobs over a whole preset table.
type Intake struct {
	service       *job.ConvertService
	presets       *preset.Table
	blurIntensity int
	pushToS3      bool
	logger        *slog.Logger
}

// NewIntake creates an Intake.
func NewIntake(service *job.ConvertService, presets *preset.Table, blurIntensity int, pushToS3 bool, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		service:       service,
		presets:       presets,
		blurIntensity: blurIntensity,
		pushToS3:      pushToS3,
		logger:        logger,
	}
}

// Handle decodes path and runs it through every preset. It satisfies Handler.
func (in *Intake) Handle(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	src, err := media.Decode(ctx, f, filepath.Base(path))
	if err != nil {
		return err
	}

	result, err := in.service.Process(ctx, job.ConvertInput{
		Source:        src,
		Targets:       in.presets.All(),
		BlurIntensity: in.blurIntensity,
		PushToS3:      in.pushToS3,
	})
	if err != nil {
		return err
	}

	completed, failed := result.Counts()
	in.logger.Info("hot folder file converted",
		slog.String("file", path),
		slog.String("job_id", result.ID),
		slog.String("status", string(result.Status)),
		slog.Int("completed", completed),
		slog.Int("failed", failed),
	)
	return nil
}
