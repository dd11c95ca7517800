// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Blur intensity bounds accepted for the server default.
const (
	MinBlurIntensity = 10
	MaxBlurIntensity = 100
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1..65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidBlurIntensity is returned when DEFAULT_BLUR_INTENSITY is out of range.
	ErrInvalidBlurIntensity = errors.New("config: DEFAULT_BLUR_INTENSITY must be between 10 and 100")
	// ErrInvalidBatchDelay is returned when BATCH_DELAY is negative.
	ErrInvalidBatchDelay = errors.New("config: BATCH_DELAY must not be negative")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES, default=33554432" json:"max_upload_bytes"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Storage settings
	OutputDir string        `env:"OUTPUT_DIR, default=/tmp/coverfit" json:"output_dir"`
	ResultTTL time.Duration `env:"RESULT_TTL, default=24h" json:"result_ttl"` // 0 keeps results forever

	// Conversion settings
	PresetsFile          string        `env:"PRESETS_FILE" json:"presets_file,omitempty"`
	DefaultBlurIntensity int           `env:"DEFAULT_BLUR_INTENSITY, default=30" json:"default_blur_intensity"`
	BatchDelay           time.Duration `env:"BATCH_DELAY, default=50ms" json:"batch_delay"`

	// Hot folder intake
	WatchDir string `env:"WATCH_DIR" json:"watch_dir,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// WatchEnabled returns true if a hot folder is configured.
func (c *Config) WatchEnabled() bool {
	return c.WatchDir != ""
}

// Load reads configuration from the process environment and validates it.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration through lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and dependent settings.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.DefaultBlurIntensity < MinBlurIntensity || c.DefaultBlurIntensity > MaxBlurIntensity {
		return fmt.Errorf("%w: got %d", ErrInvalidBlurIntensity, c.DefaultBlurIntensity)
	}
	if c.BatchDelay < 0 {
		return ErrInvalidBatchDelay
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, OutputDir: %s, PresetsFile: %s, DefaultBlurIntensity: %d, BatchDelay: %s, ResultTTL: %s, WatchDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.OutputDir,
		c.PresetsFile,
		c.DefaultBlurIntensity,
		c.BatchDelay,
		c.ResultTTL,
		c.WatchDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
