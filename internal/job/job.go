// Package job provides the Job aggregate for batch cover conversions.
// A job converts one source image into an ordered list of targets, each
// tracked independently, and is persisted through the Repository port.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/coverfit/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is created and waiting to start.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates targets are being converted.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates at least one target was produced.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates no target could be produced.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the batch was stopped before all targets ran.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TargetStatus represents the status of a single output in the batch.
type TargetStatus string

const (
	// TargetPending indicates the target has not been converted yet.
	TargetPending TargetStatus = "PENDING"
	// TargetProcessing indicates the target is being converted.
	TargetProcessing TargetStatus = "PROCESSING"
	// TargetCompleted indicates the cover was produced and stored.
	TargetCompleted TargetStatus = "COMPLETED"
	// TargetFailed indicates the conversion or storage failed.
	TargetFailed TargetStatus = "FAILED"
)

// Target is one requested output of a job.
type Target struct {
	// ID is the preset ID, or "custom-<w>x<h>" for ad-hoc sizes.
	ID string
	// Name is the human-readable label used in the download file name.
	Name string
	// Width and Height are the output dimensions.
	Width  int
	Height int
	// Status is the current conversion status.
	Status TargetStatus
	// FileName is the download name, "<base>_<name>.png".
	FileName string
	// Key is the storage key of the stored cover.
	Key string
	// Location is where local storage put the cover.
	Location string
	// URL is the S3 URL if the job pushes to S3.
	URL string
	// Error contains any error message if the target failed.
	Error string
	// StartedAt is when conversion started.
	StartedAt time.Time
	// CompletedAt is when conversion finished.
	CompletedAt time.Time
}

// Job represents a batch conversion of one source image.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Targets are the outputs in processing order.
	Targets []Target
	// Progress is the percentage of targets finished (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// SourceName is the original file name of the upload.
	SourceName string
	// SourceWidth and SourceHeight are the decoded source dimensions.
	SourceWidth  int
	SourceHeight int
	// BlurIntensity controls the background softness for every target.
	BlurIntensity int
	// PushToS3 indicates whether to upload the results to S3.
	PushToS3 bool
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Targets:   make([]Target, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetTargets replaces the job's targets.
func (j *Job) SetTargets(targets []Target) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Targets = targets
	j.UpdatedAt = time.Now()
}

// UpdateTarget replaces the target at index and recomputes progress.
func (j *Job) UpdateTarget(index int, target Target) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.Targets) {
		return
	}
	j.Targets[index] = target
	j.Progress = j.finishedPercentLocked()
	j.UpdatedAt = time.Now()
}

// FindTarget returns the target with the given ID.
func (j *Job) FindTarget(targetID string) (Target, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, t := range j.Targets {
		if t.ID == targetID {
			return t, true
		}
	}
	return Target{}, false
}

// Counts returns how many targets completed and failed.
func (j *Job) Counts() (completed, failed int) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, t := range j.Targets {
		switch t.Status {
		case TargetCompleted:
			completed++
		case TargetFailed:
			failed++
		}
	}
	return completed, failed
}

// Keys returns the storage keys of every stored cover.
func (j *Job) Keys() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	keys := make([]string, 0, len(j.Targets))
	for _, t := range j.Targets {
		if t.Key != "" {
			keys = append(keys, t.Key)
		}
	}
	return keys
}

func (j *Job) finishedPercentLocked() int {
	if len(j.Targets) == 0 {
		return 0
	}
	done := 0
	for _, t := range j.Targets {
		if t.Status == TargetCompleted || t.Status == TargetFailed {
			done++
		}
	}
	return done * 100 / len(j.Targets)
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	targets := make([]Target, len(j.Targets))
	copy(targets, j.Targets)

	return &Job{
		ID:            j.ID,
		Status:        j.Status,
		Targets:       targets,
		Progress:      j.Progress,
		Error:         j.Error,
		SourceName:    j.SourceName,
		SourceWidth:   j.SourceWidth,
		SourceHeight:  j.SourceHeight,
		BlurIntensity: j.BlurIntensity,
		PushToS3:      j.PushToS3,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}
