package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/coverfit/internal/config"
	"github.com/maauso/coverfit/internal/preset"
	"github.com/maauso/coverfit/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                 8080,
		OutputDir:            t.TempDir(),
		DefaultBlurIntensity: 30,
		BatchDelay:           0,
		LogFormat:            "text",
		LogLevel:             "error",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewDependencies_Local(t *testing.T) {
	deps, err := NewDependencies(testConfig(t), testLogger())
	require.NoError(t, err)

	assert.NotNil(t, deps.ConvertService)
	assert.Equal(t, len(preset.Defaults()), deps.Presets.Len())
	assert.IsType(t, &storage.LocalStorage{}, deps.Storage)
	assert.Nil(t, deps.Watcher)
}

func TestNewDependencies_PresetsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.PresetsFile = filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(cfg.PresetsFile, []byte(`presets:
  - id: banner
    name: Banner
    width: 1500
    height: 500
`), 0o600))

	deps, err := NewDependencies(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"banner"}, deps.Presets.IDs())

	cfg.PresetsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewDependencies(cfg, testLogger())
	assert.Error(t, err)
}

func TestNewDependencies_Watcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchDir = t.TempDir()

	deps, err := NewDependencies(cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, deps.Watcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, deps.Watcher.Run(ctx))

	cfg.WatchDir = filepath.Join(t.TempDir(), "missing")
	_, err = NewDependencies(cfg, testLogger())
	assert.Error(t, err)
}

func TestNewDependencies_S3(t *testing.T) {
	cfg := testConfig(t)
	cfg.S3Bucket = "covers"
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.AWSAccessKeyID = "test"
	cfg.AWSSecretAccessKey = "test"

	deps, err := NewDependencies(cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &storage.S3Storage{}, deps.Storage)
}

func TestRunJanitor_DisabledReturnsImmediately(t *testing.T) {
	deps, err := NewDependencies(testConfig(t), testLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		deps.RunJanitor(context.Background(), time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor should not run without a TTL")
	}
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.ResultTTL = time.Hour
	deps, err := NewDependencies(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		deps.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
