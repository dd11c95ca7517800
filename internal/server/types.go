// Package server provides the HTTP server for the cover conversion API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/coverfit/internal/preset"
)

// ConvertRequest is the HTTP request body for a single synchronous conversion.
// Either PresetID or both Width and Height must be set.
type ConvertRequest struct {
	// ImageBase64 is the base64-encoded source image, optionally as a data URL.
	ImageBase64 string `json:"image_base64" validate:"required"`
	// FileName is the original file name, used to build the download name.
	FileName string `json:"file_name" validate:"max=255"`
	// PresetID selects a size from the preset table.
	PresetID string `json:"preset_id"`
	// Width is the custom target width.
	Width int `json:"width" validate:"omitempty,min=100,max=4096"`
	// Height is the custom target height.
	Height int `json:"height" validate:"omitempty,min=100,max=4096"`
	// BlurIntensity controls background softness. Zero selects the server default.
	BlurIntensity int `json:"blur_intensity" validate:"omitempty,min=10,max=100"`
}

// CustomSize is a caller-chosen target size.
type CustomSize struct {
	Width  int `json:"width" validate:"required,min=100,max=4096"`
	Height int `json:"height" validate:"required,min=100,max=4096"`
}

// CreateJobRequest is the HTTP request body for creating a batch job.
// With neither PresetIDs nor Targets set, every preset is produced.
type CreateJobRequest struct {
	// ImageBase64 is the base64-encoded source image, optionally as a data URL.
	ImageBase64 string `json:"image_base64" validate:"required"`
	// FileName is the original file name, used to build the download names.
	FileName string `json:"file_name" validate:"max=255"`
	// PresetIDs selects presets by ID, in the order given.
	PresetIDs []string `json:"preset_ids" validate:"dive,required"`
	// Targets adds custom sizes after the presets.
	Targets []CustomSize `json:"targets" validate:"dive"`
	// BlurIntensity controls background softness. Zero selects the server default.
	BlurIntensity int `json:"blur_intensity" validate:"omitempty,min=10,max=100"`
	// PushToS3 indicates whether to upload the covers to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// TargetResponse describes one output of a job.
type TargetResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Status      string `json:"status"`
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url,omitempty"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of targets finished (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// SourceName is the original file name of the upload.
	SourceName string `json:"source_name,omitempty"`
	// BlurIntensity is the blur applied to every target.
	BlurIntensity int `json:"blur_intensity"`
	// Targets lists the outputs in processing order.
	Targets []TargetResponse `json:"targets"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when processing finished, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// PresetsResponse is the HTTP response for the preset table.
type PresetsResponse struct {
	Presets []preset.Preset `json:"presets"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
