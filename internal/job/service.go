package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/maauso/coverfit/internal/compose"
	"github.com/maauso/coverfit/internal/media"
	"github.com/maauso/coverfit/internal/preset"
	"github.com/maauso/coverfit/internal/storage"
)

// Static errors for the conversion service.
var (
	// ErrNoTargets is returned when a job is created without any target.
	ErrNoTargets = errors.New("no targets requested")
	// ErrDuplicateTarget is returned when a job lists the same target twice.
	ErrDuplicateTarget = errors.New("duplicate target")
	// ErrSourceRequired is returned when a job is created without a decoded source.
	ErrSourceRequired = errors.New("source image required")
	// ErrResultNotFound is returned when a target has no stored cover.
	ErrResultNotFound = errors.New("result not found")
)

// DefaultItemDelay is the pause between targets of a batch.
const DefaultItemDelay = 50 * time.Millisecond

// ConvertInput contains the input parameters for a batch conversion.
type ConvertInput struct {
	// Source is the decoded upload.
	Source *media.Source
	// Targets are the sizes to produce, in order.
	Targets []preset.Preset
	// BlurIntensity controls background softness, conventionally 10..100.
	BlurIntensity int
	// PushToS3 indicates whether to upload the covers to S3.
	PushToS3 bool
}

// ConvertService orchestrates batch conversions. Targets of a job run one at
// a time, each producing an independent cover; a failing target is recorded
// and the batch moves on.
type ConvertService struct {
	repo      Repository
	converter media.Converter
	store     storage.Storage
	logger    *slog.Logger
	itemDelay time.Duration
}

// ServiceOption configures a ConvertService.
type ServiceOption func(*ConvertService)

// WithItemDelay sets the pause between consecutive targets. Zero disables it.
func WithItemDelay(d time.Duration) ServiceOption {
	return func(s *ConvertService) {
		if d >= 0 {
			s.itemDelay = d
		}
	}
}

// NewConvertService creates a new ConvertService.
func NewConvertService(repo Repository, converter media.Converter, store storage.Storage, logger *slog.Logger, opts ...ServiceOption) *ConvertService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConvertService{
		repo:      repo,
		converter: converter,
		store:     store,
		logger:    logger,
		itemDelay: DefaultItemDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConvertOne produces a single cover synchronously without creating a job.
func (s *ConvertService) ConvertOne(ctx context.Context, src image.Image, target compose.TargetSpec) ([]byte, error) {
	return s.converter.Convert(ctx, src, target)
}

// CreateJob validates the input and persists a new IN_QUEUE job.
func (s *ConvertService) CreateJob(ctx context.Context, input ConvertInput) (*Job, error) {
	if input.Source == nil || input.Source.Image == nil {
		return nil, ErrSourceRequired
	}
	if len(input.Targets) == 0 {
		return nil, ErrNoTargets
	}

	job := New()
	job.SourceName = input.Source.Name
	job.SourceWidth = input.Source.Width
	job.SourceHeight = input.Source.Height
	job.BlurIntensity = input.BlurIntensity
	job.PushToS3 = input.PushToS3

	seen := make(map[string]bool, len(input.Targets))
	targets := make([]Target, 0, len(input.Targets))
	for _, p := range input.Targets {
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, p.ID)
		}
		seen[p.ID] = true
		targets = append(targets, Target{
			ID:       p.ID,
			Name:     p.Name,
			Width:    p.Width,
			Height:   p.Height,
			Status:   TargetPending,
			FileName: media.OutputName(input.Source.Name, p.Name),
		})
	}
	job.SetTargets(targets)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("source", input.Source.Name),
		slog.Int("source_width", input.Source.Width),
		slog.Int("source_height", input.Source.Height),
		slog.Int("targets", len(targets)),
		slog.Int("blur_intensity", input.BlurIntensity),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// Process creates a job and runs it to completion.
func (s *ConvertService) Process(ctx context.Context, input ConvertInput) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID, input.Source.Image)
}

// ProcessExistingJob converts every target of a stored job in order.
//
// The job ends COMPLETED when at least one target succeeded and FAILED when
// none did. Cancelling ctx stops the batch between targets: remaining targets
// are marked failed and the job ends CANCELLED.
func (s *ConvertService) ProcessExistingJob(ctx context.Context, jobID string, src image.Image) (*Job, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("job_id", job.ID))
	start := time.Now()

	for i, target := range job.Clone().Targets {
		if i > 0 && !s.pause(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		target.Status = TargetProcessing
		target.StartedAt = time.Now()
		job.UpdateTarget(i, target)
		s.save(ctx, job, logger)

		target = s.runTarget(ctx, job, target, src)
		target.CompletedAt = time.Now()
		job.UpdateTarget(i, target)
		s.save(ctx, job, logger)

		if target.Status == TargetFailed {
			logger.Warn("target failed",
				slog.String("target", target.ID),
				slog.String("error", target.Error),
			)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.abandonPending(job, ctxErr)
		_ = job.Cancel()
		// The caller's context is gone; persist the final state regardless.
		s.save(context.WithoutCancel(ctx), job, logger)
		logger.Warn("job cancelled", slog.String("error", ctxErr.Error()))
		return job.Clone(), fmt.Errorf("job %s cancelled: %w", job.ID, ctxErr)
	}

	completed, failed := job.Counts()
	if completed == 0 {
		_ = job.Fail(fmt.Sprintf("all %d targets failed", failed))
	} else {
		_ = job.Complete()
	}
	s.save(ctx, job, logger)

	logger.Info("job finished",
		slog.String("status", string(job.GetStatus())),
		slog.Int("completed", completed),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
	)

	return job.Clone(), nil
}

// runTarget converts and stores one target, returning its updated state.
func (s *ConvertService) runTarget(ctx context.Context, job *Job, target Target, src image.Image) Target {
	spec := compose.TargetSpec{Width: target.Width, Height: target.Height, BlurIntensity: job.BlurIntensity}
	data, err := s.converter.Convert(ctx, src, spec)
	if err != nil {
		target.Status = TargetFailed
		target.Error = fmt.Sprintf("convert: %v", err)
		return target
	}

	key := job.ID + "/" + target.ID + "/" + target.FileName
	location, err := s.store.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		target.Status = TargetFailed
		target.Error = fmt.Sprintf("store: %v", err)
		return target
	}
	target.Key = key
	target.Location = location

	if job.PushToS3 {
		url, err := s.store.UploadToS3(ctx, key, bytes.NewReader(data))
		if err != nil {
			target.Status = TargetFailed
			target.Error = fmt.Sprintf("upload: %v", err)
			return target
		}
		target.URL = url
	}

	target.Status = TargetCompleted
	return target
}

// pause waits the inter-item delay and reports whether ctx is still live.
func (s *ConvertService) pause(ctx context.Context) bool {
	if s.itemDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.itemDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *ConvertService) abandonPending(job *Job, cause error) {
	for i, t := range job.Clone().Targets {
		if t.Status == TargetPending || t.Status == TargetProcessing {
			t.Status = TargetFailed
			t.Error = fmt.Sprintf("cancelled: %v", cause)
			job.UpdateTarget(i, t)
		}
	}
}

func (s *ConvertService) save(ctx context.Context, job *Job, logger *slog.Logger) {
	if err := s.repo.Save(ctx, job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}

// GetJob retrieves a job by ID.
func (s *ConvertService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *ConvertService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// OpenResult opens the stored cover of a completed target.
// The caller is responsible for closing the returned ReadCloser.
func (s *ConvertService) OpenResult(ctx context.Context, jobID, targetID string) (io.ReadCloser, Target, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, Target{}, err
	}
	target, ok := job.FindTarget(targetID)
	if !ok || target.Status != TargetCompleted || target.Key == "" {
		return nil, Target{}, fmt.Errorf("%w: %s/%s", ErrResultNotFound, jobID, targetID)
	}

	rc, err := s.store.Open(ctx, target.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Target{}, fmt.Errorf("%w: %s/%s", ErrResultNotFound, jobID, targetID)
		}
		return nil, Target{}, err
	}
	return rc, target, nil
}

// DeleteJob removes a job and its stored covers.
func (s *ConvertService) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, job.Keys()); err != nil {
		s.logger.Warn("failed to delete job results",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
	return s.repo.Delete(ctx, jobID)
}

// PruneExpired deletes finished jobs older than ttl together with their
// stored covers and returns how many jobs were removed.
func (s *ConvertService) PruneExpired(ctx context.Context, ttl time.Duration) (int, error) {
	removed, err := s.repo.DeleteFinishedBefore(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	for _, job := range removed {
		if err := s.store.Delete(ctx, job.Keys()); err != nil {
			s.logger.Warn("failed to delete expired results",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(removed) > 0 {
		s.logger.Info("pruned expired jobs", slog.Int("count", len(removed)))
	}
	return len(removed), nil
}
