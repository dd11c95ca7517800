package job

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/coverfit/internal/compose"
	"github.com/maauso/coverfit/internal/media"
	"github.com/maauso/coverfit/internal/preset"
	"github.com/maauso/coverfit/internal/storage"
)

// mockConverter implements media.Converter for testing.
type mockConverter struct {
	mock.Mock
}

func (m *mockConverter) Convert(ctx context.Context, src image.Image, target compose.TargetSpec) ([]byte, error) {
	args := m.Called(ctx, src, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// mockStorage implements storage.Storage for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	args := m.Called(ctx, key, r)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, keys []string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *mockStorage) UploadToS3(ctx context.Context, key string, r io.Reader) (string, error) {
	args := m.Called(ctx, key, r)
	return args.String(0), args.Error(1)
}

func testSource() *media.Source {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	return &media.Source{Image: img, Format: "png", Name: "holiday.photo.png", Width: 40, Height: 30}
}

func targets(ids ...string) []preset.Preset {
	out := make([]preset.Preset, 0, len(ids))
	for i, id := range ids {
		out = append(out, preset.Preset{ID: id, Name: id, Width: 100 + i*10, Height: 100})
	}
	return out
}

func newTestService(t *testing.T, conv media.Converter, store storage.Storage) (*ConvertService, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewConvertService(repo, conv, store, nil, WithItemDelay(0)), repo
}

func TestNewConvertService_Defaults(t *testing.T) {
	svc := NewConvertService(NewMemoryRepository(), &mockConverter{}, &mockStorage{}, nil)
	assert.Equal(t, DefaultItemDelay, svc.itemDelay)
	assert.NotNil(t, svc.logger)

	svc = NewConvertService(NewMemoryRepository(), &mockConverter{}, &mockStorage{}, nil, WithItemDelay(-time.Second))
	assert.Equal(t, DefaultItemDelay, svc.itemDelay, "negative delay is ignored")
}

func TestConvertService_CreateJob(t *testing.T) {
	svc, repo := newTestService(t, &mockConverter{}, &mockStorage{})
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, ConvertInput{
		Source:        testSource(),
		Targets:       targets("douyin-cover", "weibo-cover"),
		BlurIntensity: 40,
		PushToS3:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusInQueue, job.Status)
	assert.Equal(t, "holiday.photo.png", job.SourceName)
	assert.Equal(t, 40, job.SourceWidth)
	assert.Equal(t, 40, job.BlurIntensity)
	assert.True(t, job.PushToS3)
	require.Len(t, job.Targets, 2)
	assert.Equal(t, TargetPending, job.Targets[0].Status)
	assert.Equal(t, "holiday_douyin-cover.png", job.Targets[0].FileName)

	saved, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, saved.Targets, 2)
}

func TestConvertService_CreateJob_Errors(t *testing.T) {
	svc, _ := newTestService(t, &mockConverter{}, &mockStorage{})
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, ConvertInput{Targets: targets("a")})
	assert.ErrorIs(t, err, ErrSourceRequired)

	_, err = svc.CreateJob(ctx, ConvertInput{Source: testSource()})
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = svc.CreateJob(ctx, ConvertInput{Source: testSource(), Targets: targets("a", "b", "a")})
	assert.ErrorIs(t, err, ErrDuplicateTarget)
}

func TestConvertService_Process_AllSucceed(t *testing.T) {
	conv := &mockConverter{}
	conv.On("Convert", mock.Anything, mock.Anything, mock.AnythingOfType("compose.TargetSpec")).
		Return([]byte("png-bytes"), nil)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc, _ := newTestService(t, conv, store)
	ctx := context.Background()

	job, err := svc.Process(ctx, ConvertInput{
		Source:        testSource(),
		Targets:       targets("a", "b", "c"),
		BlurIntensity: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.False(t, job.CompletedAt.IsZero())
	for _, target := range job.Targets {
		assert.Equal(t, TargetCompleted, target.Status, target.ID)
		assert.Equal(t, job.ID+"/"+target.ID+"/"+target.FileName, target.Key)
		assert.NotEmpty(t, target.Location)
		assert.Empty(t, target.URL)
	}

	conv.AssertNumberOfCalls(t, "Convert", 3)
	conv.AssertCalled(t, "Convert", mock.Anything, mock.Anything,
		compose.TargetSpec{Width: 110, Height: 100, BlurIntensity: 30})

	rc, target, err := svc.OpenResult(ctx, job.ID, "b")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "holiday_b.png", target.FileName)
}

func TestConvertService_Process_PartialFailure(t *testing.T) {
	conv := &mockConverter{}
	conv.On("Convert", mock.Anything, mock.Anything, mock.MatchedBy(func(s compose.TargetSpec) bool {
		return s.Width == 110
	})).Return(nil, compose.ErrContextUnavailable)
	conv.On("Convert", mock.Anything, mock.Anything, mock.Anything).Return([]byte("ok"), nil)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc, _ := newTestService(t, conv, store)

	job, err := svc.Process(context.Background(), ConvertInput{
		Source:  testSource(),
		Targets: targets("a", "b", "c"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status, "one failed target does not fail the batch")
	assert.Equal(t, TargetCompleted, job.Targets[0].Status)
	assert.Equal(t, TargetFailed, job.Targets[1].Status)
	assert.Contains(t, job.Targets[1].Error, "convert")
	assert.Empty(t, job.Targets[1].Key)
	assert.Equal(t, TargetCompleted, job.Targets[2].Status)

	_, _, err = svc.OpenResult(context.Background(), job.ID, "b")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestConvertService_Process_AllFail(t *testing.T) {
	conv := &mockConverter{}
	conv.On("Convert", mock.Anything, mock.Anything, mock.Anything).Return(nil, compose.ErrInvalidTarget)
	svc, _ := newTestService(t, conv, &mockStorage{})

	job, err := svc.Process(context.Background(), ConvertInput{
		Source:  testSource(),
		Targets: targets("a", "b"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "all 2 targets failed", job.Error)
	assert.Equal(t, 100, job.Progress)
}

func TestConvertService_Process_StoreFailure(t *testing.T) {
	conv := &mockConverter{}
	conv.On("Convert", mock.Anything, mock.Anything, mock.Anything).Return([]byte("ok"), nil)
	store := &mockStorage{}
	store.On("Put", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("disk full"))
	svc, _ := newTestService(t, conv, store)

	job, err := svc.Process(context.Background(), ConvertInput{Source: testSource(), Targets: targets("a")})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Targets[0].Error, "disk full")
}

func TestConvertService_Process_PushToS3(t *testing.T) {
	conv := &mockConverter{}
	conv.On("Convert", mock.Anything, mock.Anything, mock.Anything).Return([]byte("ok"), nil)
	store := &mockStorage{}
	store.On("Put", mock.Anything, mock.Anything, mock.Anything).Return("/tmp/x.png", nil)
	store.On("UploadToS3", mock.Anything, mock.Anything, mock.Anything).
		Return("https://bucket.s3.eu-west-1.amazonaws.com/k", nil).Once()
	store.On("UploadToS3", mock.Anything, mock.Anything, mock.Anything).
		Return("", storage.ErrS3NotConfigured)
	svc, _ := newTestService(t, conv, store)

	job, err := svc.Process(context.Background(), ConvertInput{
		Source:   testSource(),
		Targets:  targets("a", "b"),
		PushToS3: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "https://bucket.s3.eu-west-1.amazonaws.com/k", job.Targets[0].URL)
	assert.Equal(t, TargetFailed, job.Targets[1].Status)
	assert.Contains(t, job.Targets[1].Error, "upload")
	store.AssertNumberOfCalls(t, "UploadToS3", 2)
}

func TestConvertService_Process_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conv := &mockConverter{}
	conv.On("Convert", mock.Anything, mock.Anything, mock.Anything).Return([]byte("ok"), nil)
	store := &mockStorage{}
	store.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("/tmp/a.png", nil).Once()
	repo := NewMemoryRepository()
	svc := NewConvertService(repo, conv, store, nil, WithItemDelay(time.Hour))

	job, err := svc.Process(ctx, ConvertInput{Source: testSource(), Targets: targets("a", "b", "c")})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, job)

	assert.Equal(t, StatusCancelled, job.Status)
	assert.Equal(t, TargetCompleted, job.Targets[0].Status)
	assert.Equal(t, TargetFailed, job.Targets[1].Status)
	assert.Equal(t, TargetFailed, job.Targets[2].Status)
	conv.AssertNumberOfCalls(t, "Convert", 1)

	saved, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, saved.Status)
}

func TestConvertService_ProcessExistingJob_NotFound(t *testing.T) {
	svc, _ := newTestService(t, &mockConverter{}, &mockStorage{})

	_, err := svc.ProcessExistingJob(context.Background(), "job-404", testSource().Image)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestConvertService_ProcessExistingJob_AlreadyRunning(t *testing.T) {
	svc, repo := newTestService(t, &mockConverter{}, &mockStorage{})
	ctx := context.Background()

	job := NewWithID("job-1")
	_ = job.Start()
	require.NoError(t, repo.Save(ctx, job))

	_, err := svc.ProcessExistingJob(ctx, "job-1", testSource().Image)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConvertService_ConvertOne(t *testing.T) {
	conv := &mockConverter{}
	spec := compose.TargetSpec{Width: 1080, Height: 1080, BlurIntensity: 30}
	conv.On("Convert", mock.Anything, mock.Anything, spec).Return([]byte("cover"), nil)
	svc, repo := newTestService(t, conv, &mockStorage{})

	data, err := svc.ConvertOne(context.Background(), testSource().Image, spec)
	require.NoError(t, err)
	assert.Equal(t, []byte("cover"), data)

	jobs, _ := repo.List(context.Background())
	assert.Empty(t, jobs, "single conversions do not create jobs")
}

func TestConvertService_DeleteJob(t *testing.T) {
	conv := &mockConverter{}
	conv.On("Convert", mock.Anything, mock.Anything, mock.Anything).Return([]byte("ok"), nil)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc, _ := newTestService(t, conv, store)
	ctx := context.Background()

	job, err := svc.Process(ctx, ConvertInput{Source: testSource(), Targets: targets("a")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteJob(ctx, job.ID))

	_, err = svc.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = store.Open(ctx, job.Targets[0].Key)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteJob(ctx, job.ID), ErrJobNotFound)
}

func TestConvertService_OpenResult_MissingFile(t *testing.T) {
	store := &mockStorage{}
	store.On("Open", mock.Anything, "job-1/a/x.png").Return(nil, storage.ErrNotFound)
	svc, repo := newTestService(t, &mockConverter{}, store)
	ctx := context.Background()

	job := NewWithID("job-1")
	job.SetTargets([]Target{{ID: "a", Status: TargetCompleted, Key: "job-1/a/x.png"}})
	require.NoError(t, repo.Save(ctx, job))

	_, _, err := svc.OpenResult(ctx, "job-1", "a")
	assert.ErrorIs(t, err, ErrResultNotFound)

	_, _, err = svc.OpenResult(ctx, "job-1", "zzz")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestConvertService_PruneExpired(t *testing.T) {
	store := &mockStorage{}
	store.On("Delete", mock.Anything, []string{"job-old/a/x.png"}).Return(nil)
	svc, repo := newTestService(t, &mockConverter{}, store)
	ctx := context.Background()

	old := NewWithID("job-old")
	_ = old.Start()
	old.SetTargets([]Target{{ID: "a", Status: TargetCompleted, Key: "job-old/a/x.png"}})
	_ = old.Complete()
	old.CompletedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Save(ctx, old))

	fresh := NewWithID("job-fresh")
	require.NoError(t, repo.Save(ctx, fresh))

	n, err := svc.PruneExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	store.AssertExpectations(t)

	_, err = repo.FindByID(ctx, "job-fresh")
	assert.NoError(t, err)
}

func TestConvertService_PauseHonoursContext(t *testing.T) {
	svc := NewConvertService(NewMemoryRepository(), &mockConverter{}, &mockStorage{}, nil, WithItemDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, svc.pause(ctx))
	assert.Less(t, time.Since(start), time.Second)

	svc = NewConvertService(NewMemoryRepository(), &mockConverter{}, &mockStorage{}, nil, WithItemDelay(time.Millisecond))
	assert.True(t, svc.pause(context.Background()))
}
