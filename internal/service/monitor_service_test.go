package service

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"posture-monitor/internal/classifier"
	"posture-monitor/internal/engine"
	"posture-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunner 记录请求，并在返回前检查上传文件
type fakeRunner struct {
	req      engine.Request
	content  string
	release  bool
	summary  engine.Summary
	runError error
}

func (r *fakeRunner) Run(ctx context.Context, req engine.Request, w io.Writer) (engine.Summary, error) {
	r.req = req
	if data, err := os.ReadFile(req.Source); err == nil {
		r.content = string(data)
	}
	if r.release {
		_ = req.Scratch.Release()
	}
	return r.summary, r.runError
}

type fakeAnalyzer struct {
	path    string
	start   float64
	end     float64
	existed bool
}

func (a *fakeAnalyzer) AnalyzeClip(ctx context.Context, path string) (*models.ClipAnalysis, error) {
	a.path = path
	_, err := os.Stat(path)
	a.existed = err == nil
	return &models.ClipAnalysis{Prediction: "supine"}, nil
}

func (a *fakeAnalyzer) AnalyzeInterval(ctx context.Context, path string, start, end float64) (*models.IntervalAnalysis, error) {
	a.path, a.start, a.end = path, start, end
	return nil, engine.ErrNoFramesAnalyzed
}

func (a *fakeAnalyzer) ClassifyImage(ctx context.Context, img image.Image) (*models.ImagePrediction, error) {
	return &models.ImagePrediction{Prediction: "left"}, nil
}

func (a *fakeAnalyzer) ClassifyFirstFrame(ctx context.Context, path string) (*models.ImagePrediction, error) {
	a.path = path
	return &models.ImagePrediction{Prediction: "right", Note: "first"}, nil
}

type fakeStatus struct {
	status classifier.Status
	err    error
}

func (f *fakeStatus) Classify(ctx context.Context, img *image.Gray) (classifier.Prediction, error) {
	return classifier.Prediction{}, nil
}

func (f *fakeStatus) Status(ctx context.Context) (classifier.Status, error) {
	return f.status, f.err
}

func TestMonitorService_StreamUpload(t *testing.T) {
	tmp := t.TempDir()
	runner := &fakeRunner{release: true, summary: engine.Summary{Reason: engine.ReasonEndOfSource}}
	svc := NewMonitorService(runner, &fakeAnalyzer{}, nil, tmp, zap.NewNop())

	summary, err := svc.StreamUpload(context.Background(),
		Upload{Filename: "ward-3.mp4", Body: strings.NewReader("video-bytes")},
		engine.Patient{ID: "p-1", Name: "Alice"},
		io.Discard,
	)
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonEndOfSource, summary.Reason)

	assert.Equal(t, "video-bytes", runner.content)
	assert.Equal(t, "ward-3.mp4", filepath.Base(runner.req.Source))
	assert.Equal(t, filepath.Dir(runner.req.Source), runner.req.Scratch.Dir())
	assert.NotEmpty(t, runner.req.SessionID)
	assert.Equal(t, "p-1", runner.req.Patient.ID)

	// 会话释放后目录不存在
	_, err = os.Stat(runner.req.Scratch.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestMonitorService_StreamURL(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewMonitorService(runner, &fakeAnalyzer{}, nil, t.TempDir(), zap.NewNop())

	_, err := svc.StreamURL(context.Background(), "rtsp://cam-1/stream", engine.Patient{}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "rtsp://cam-1/stream", runner.req.Source)
	assert.Nil(t, runner.req.Scratch)

	_, err = svc.StreamURL(context.Background(), "  ", engine.Patient{}, io.Discard)
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestMonitorService_BatchUploadsAreRemoved(t *testing.T) {
	tmp := t.TempDir()
	analyzer := &fakeAnalyzer{}
	svc := NewMonitorService(&fakeRunner{}, analyzer, nil, tmp, zap.NewNop())

	result, err := svc.AnalyzeClipUpload(context.Background(), Upload{Filename: "clip.mp4", Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "supine", result.Prediction)
	assert.True(t, analyzer.existed)

	_, err = os.Stat(analyzer.path)
	assert.True(t, os.IsNotExist(err))

	_, err = svc.AnalyzeIntervalUpload(context.Background(), Upload{Filename: "clip.mp4", Body: strings.NewReader("x")}, 1, 4)
	assert.ErrorIs(t, err, engine.ErrNoFramesAnalyzed)
	assert.Equal(t, 1.0, analyzer.start)
	assert.Equal(t, 4.0, analyzer.end)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMonitorService_InvalidIntervalSkipsUpload(t *testing.T) {
	tmp := t.TempDir()
	analyzer := &fakeAnalyzer{}
	svc := NewMonitorService(&fakeRunner{}, analyzer, nil, tmp, zap.NewNop())

	_, err := svc.AnalyzeIntervalUpload(context.Background(), Upload{Filename: "clip.mp4", Body: strings.NewReader("x")}, 5, 2)
	assert.ErrorIs(t, err, engine.ErrInvalidInterval)
	assert.Empty(t, analyzer.path)
}

func TestMonitorService_MissingUpload(t *testing.T) {
	svc := NewMonitorService(&fakeRunner{}, &fakeAnalyzer{}, nil, t.TempDir(), zap.NewNop())

	_, err := svc.StreamUpload(context.Background(), Upload{}, engine.Patient{}, io.Discard)
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestMonitorService_Health(t *testing.T) {
	t.Run("model loaded", func(t *testing.T) {
		clf := &fakeStatus{status: classifier.Status{ModelLoaded: true, Classes: []string{"supine", "prone"}}}
		svc := NewMonitorService(&fakeRunner{}, &fakeAnalyzer{}, clf, t.TempDir(), zap.NewNop())

		report := svc.Health(context.Background())
		assert.Equal(t, "healthy", report.Status)
		assert.True(t, report.ModelLoaded)
		assert.Equal(t, []string{"supine", "prone"}, report.Classes)
		assert.Equal(t, Version, report.Version)
		assert.NotEmpty(t, report.Timestamp)
	})

	t.Run("classifier unreachable", func(t *testing.T) {
		clf := &fakeStatus{err: errors.New("connection refused")}
		svc := NewMonitorService(&fakeRunner{}, &fakeAnalyzer{}, clf, t.TempDir(), zap.NewNop())

		report := svc.Health(context.Background())
		assert.Equal(t, "healthy", report.Status)
		assert.False(t, report.ModelLoaded)
		assert.Equal(t, classifier.DefaultClasses, report.Classes)
	})
}

func TestUploadName(t *testing.T) {
	assert.Equal(t, "clip.mp4", uploadName("clip.mp4"))
	assert.Equal(t, "passwd", uploadName("../../etc/passwd"))
	assert.Equal(t, "video.avi", uploadName(`C:\Users\nurse\video.avi`))
	assert.Equal(t, "upload.bin", uploadName(""))
	assert.Equal(t, "upload.bin", uploadName(".."))
}

// blockingRunner 直到 ctx 取消才结束会话，结束时释放临时目录
type blockingRunner struct {
	started chan engine.Request
}

func (r *blockingRunner) Run(ctx context.Context, req engine.Request, w io.Writer) (engine.Summary, error) {
	defer func() { _ = req.Scratch.Release() }()
	r.started <- req
	<-ctx.Done()
	return engine.Summary{Reason: engine.ReasonDisconnect}, ctx.Err()
}

func TestMonitorService_WaitForInflightSessions(t *testing.T) {
	runner := &blockingRunner{started: make(chan engine.Request, 1)}
	svc := NewMonitorService(runner, &fakeAnalyzer{}, &fakeStatus{}, t.TempDir(), zap.NewNop())

	// 空闲时立即返回
	require.NoError(t, svc.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.StreamUpload(ctx, Upload{Filename: "clip.mp4", Body: strings.NewReader("video")}, engine.Patient{}, io.Discard)
	}()
	req := <-runner.started
	dir := req.Scratch.Dir()

	short, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	assert.ErrorIs(t, svc.Wait(short), context.DeadlineExceeded)

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, svc.Wait(waitCtx))
	<-done

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "scratch dir %s still exists", dir)
}
