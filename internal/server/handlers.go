package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/coverfit/internal/compose"
	"github.com/maauso/coverfit/internal/job"
	"github.com/maauso/coverfit/internal/job/id"
	"github.com/maauso/coverfit/internal/media"
	"github.com/maauso/coverfit/internal/preset"
)

// DefaultBlurIntensity is used when neither the request nor the server
// configuration choose a blur.
const DefaultBlurIntensity = 30

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.ConvertService
	presets            *preset.Table
	validator          *validator.Validate
	logger             *slog.Logger
	defaultBlur        int
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaultBlur sets the blur used when a request leaves it unset.
func WithDefaultBlur(blur int) HandlerOption {
	return func(h *Handlers) {
		if blur > 0 {
			h.defaultBlur = blur
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ConvertService, presets *preset.Table, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if presets == nil {
		presets = preset.Default()
	}
	h := &Handlers{
		service:            service,
		presets:            presets,
		validator:          validator.New(),
		logger:             logger,
		defaultBlur:        DefaultBlurIntensity,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Presets handles GET /presets requests.
func (h *Handlers) Presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PresetsResponse{Presets: h.presets.All()})
}

// Convert handles POST /convert requests. The cover is returned directly as
// image/png.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	var (
		target preset.Preset
		err    error
	)
	switch {
	case req.PresetID != "":
		target, err = h.presets.Lookup(req.PresetID)
	case req.Width > 0 && req.Height > 0:
		target, err = preset.Custom(req.Width, req.Height)
	default:
		err = errors.New("preset_id or both width and height are required")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	src, err := media.DecodeBase64(r.Context(), req.ImageBase64, req.FileName)
	if err != nil {
		h.logger.Warn("failed to decode source image", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SOURCE")
		return
	}

	blur := h.blur(req.BlurIntensity)
	data, err := h.service.ConvertOne(r.Context(), src.Image, target.Target(blur))
	if err != nil {
		h.logger.Error("conversion failed",
			slog.String("target", target.ID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, compose.ErrInvalidSource) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SOURCE")
			return
		}
		writeError(w, http.StatusInternalServerError, "conversion failed", "CONVERSION_FAILED")
		return
	}

	h.logger.Info("cover converted",
		slog.String("target", target.ID),
		slog.Int("source_width", src.Width),
		slog.Int("source_height", src.Height),
		slog.Int("bytes", len(data)),
	)

	writePNGHeaders(w, media.OutputName(req.FileName, target.Name), len(data))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write cover", slog.String("error", err.Error()))
	}
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	targets, err := h.resolveTargets(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	src, err := media.DecodeBase64(r.Context(), req.ImageBase64, req.FileName)
	if err != nil {
		h.logger.Warn("failed to decode source image", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SOURCE")
		return
	}

	createdJob, err := h.service.CreateJob(r.Context(), job.ConvertInput{
		Source:        src,
		Targets:       targets,
		BlurIntensity: h.blur(req.BlurIntensity),
		PushToS3:      req.PushToS3,
	})
	if err != nil {
		if errors.Is(err, job.ErrDuplicateTarget) || errors.Is(err, job.ErrNoTargets) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// The request context ends with the response; the batch must outlive it.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if _, processErr := h.service.ProcessExistingJob(ctx, jobID, src.Image); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Int("targets", len(targets)),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}
	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// DownloadResult handles GET /jobs/{id}/results/{target} requests.
func (h *Handlers) DownloadResult(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	targetID := r.PathValue("target")

	rc, target, err := h.service.OpenResult(r.Context(), jobID, targetID)
	if err != nil {
		if errors.Is(err, job.ErrResultNotFound) {
			writeError(w, http.StatusNotFound, "result not found", "RESULT_NOT_FOUND")
			return
		}
		h.writeJobError(w, jobID, err)
		return
	}
	defer func() { _ = rc.Close() }()

	writePNGHeaders(w, target.FileName, -1)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream result",
			slog.String("job_id", jobID),
			slog.String("target", targetID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	if !foundJob.IsTerminal() {
		writeError(w, http.StatusConflict, "job is still running", "JOB_RUNNING")
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	h.logger.Info("job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes and validates a JSON body, writing the error response
// itself when it returns false.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "PAYLOAD_TOO_LARGE")
			return false
		}
		h.logger.Warn("failed to decode request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// resolveTargets maps a job request to presets: the requested preset IDs in
// order, then the custom sizes. An empty selection means the whole table.
func (h *Handlers) resolveTargets(req CreateJobRequest) ([]preset.Preset, error) {
	if len(req.PresetIDs) == 0 && len(req.Targets) == 0 {
		return h.presets.All(), nil
	}

	var targets []preset.Preset
	if len(req.PresetIDs) > 0 {
		subset, err := h.presets.Subset(req.PresetIDs)
		if err != nil {
			return nil, err
		}
		targets = append(targets, subset...)
	}
	for _, size := range req.Targets {
		p, err := preset.Custom(size.Width, size.Height)
		if err != nil {
			return nil, err
		}
		targets = append(targets, p)
	}
	return targets, nil
}

func (h *Handlers) blur(requested int) int {
	if requested > 0 {
		return requested
	}
	return h.defaultBlur
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error("job request failed",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to access job", "JOB_FETCH_FAILED")
}

// pathJobID extracts and checks the {id} path value.
func pathJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	}
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "malformed job ID", "VALIDATION_ERROR")
		return "", false
	}
	return jobID, true
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:            j.ID,
		Status:        string(j.Status),
		Progress:      j.Progress,
		Error:         j.Error,
		SourceName:    j.SourceName,
		BlurIntensity: j.BlurIntensity,
		Targets:       make([]TargetResponse, 0, len(j.Targets)),
		CreatedAt:     j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	for _, t := range j.Targets {
		tr := TargetResponse{
			ID:       t.ID,
			Name:     t.Name,
			Width:    t.Width,
			Height:   t.Height,
			Status:   string(t.Status),
			FileName: t.FileName,
			URL:      t.URL,
			Error:    t.Error,
		}
		if t.Status == job.TargetCompleted {
			tr.DownloadURL = "/jobs/" + j.ID + "/results/" + t.ID
		}
		resp.Targets = append(resp.Targets, tr)
	}
	return resp
}

// writePNGHeaders sets the headers for a cover download. A negative size
// omits Content-Length.
func writePNGHeaders(w http.ResponseWriter, fileName string, size int) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.Itoa(size))
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
