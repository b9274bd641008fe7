package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"posture-monitor/internal/classifier"
	"posture-monitor/internal/engine"
	"posture-monitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Version 服务版本（/health 返回）
const Version = "2.0.0"

var (
	// ErrMissingSource 未提供上传文件或流地址
	ErrMissingSource = errors.New("no video source provided")
)

// StreamRunner 流式会话执行（engine.Runner）
type StreamRunner interface {
	Run(ctx context.Context, req engine.Request, w io.Writer) (engine.Summary, error)
}

// ClipAnalyzer 批量分析（engine.Analyzer）
type ClipAnalyzer interface {
	AnalyzeClip(ctx context.Context, path string) (*models.ClipAnalysis, error)
	AnalyzeInterval(ctx context.Context, path string, start, end float64) (*models.IntervalAnalysis, error)
	ClassifyImage(ctx context.Context, img image.Image) (*models.ImagePrediction, error)
	ClassifyFirstFrame(ctx context.Context, path string) (*models.ImagePrediction, error)
}

// Upload 上传的视频文件
type Upload struct {
	Filename string
	Body     io.Reader
}

// MonitorService 体位监测服务
// 职责：
// 1. 上传文件落盘到会话临时目录，并把目录交给会话或在请求结束时删除
// 2. 组织流式会话请求（会话 ID、患者标记）
// 3. 健康检查
type MonitorService struct {
	runner     StreamRunner
	analyzer   ClipAnalyzer
	classifier classifier.Classifier
	tempDir    string
	logger     *zap.Logger

	// inflight 持有上传文件或正在运行的会话，关闭时等待其清理完毕
	inflight sync.WaitGroup
}

// NewMonitorService 创建体位监测服务
func NewMonitorService(
	runner StreamRunner,
	analyzer ClipAnalyzer,
	clf classifier.Classifier,
	tempDir string,
	logger *zap.Logger,
) *MonitorService {
	return &MonitorService{
		runner:     runner,
		analyzer:   analyzer,
		classifier: clf,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// StreamUpload 对上传文件执行流式分析；临时目录由会话负责释放
func (s *MonitorService) StreamUpload(ctx context.Context, upload Upload, patient engine.Patient, w io.Writer) (engine.Summary, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	scratch, path, err := s.saveUpload(upload)
	if err != nil {
		return engine.Summary{}, err
	}
	return s.runner.Run(ctx, engine.Request{
		SessionID: uuid.New().String(),
		Source:    path,
		Patient:   patient,
		Scratch:   scratch,
	}, w)
}

// StreamURL 对直播流地址执行流式分析
func (s *MonitorService) StreamURL(ctx context.Context, url string, patient engine.Patient, w io.Writer) (engine.Summary, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	if strings.TrimSpace(url) == "" {
		return engine.Summary{}, ErrMissingSource
	}
	return s.runner.Run(ctx, engine.Request{
		SessionID: uuid.New().String(),
		Source:    url,
		Patient:   patient,
	}, w)
}

// Wait 等待所有会话与批量请求结束（临时目录已释放），ctx 到期时返回其错误
func (s *MonitorService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AnalyzeClipUpload 整段分析
func (s *MonitorService) AnalyzeClipUpload(ctx context.Context, upload Upload) (*models.ClipAnalysis, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	scratch, path, err := s.saveUpload(upload)
	if err != nil {
		return nil, err
	}
	defer s.release(scratch)

	return s.analyzer.AnalyzeClip(ctx, path)
}

// AnalyzeIntervalUpload 区间分析
func (s *MonitorService) AnalyzeIntervalUpload(ctx context.Context, upload Upload, start, end float64) (*models.IntervalAnalysis, error) {
	if end <= start {
		return nil, engine.ErrInvalidInterval
	}
	s.inflight.Add(1)
	defer s.inflight.Done()

	scratch, path, err := s.saveUpload(upload)
	if err != nil {
		return nil, err
	}
	defer s.release(scratch)

	return s.analyzer.AnalyzeInterval(ctx, path, start, end)
}

// FirstFrameUpload 视频首帧分类
func (s *MonitorService) FirstFrameUpload(ctx context.Context, upload Upload) (*models.ImagePrediction, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	scratch, path, err := s.saveUpload(upload)
	if err != nil {
		return nil, err
	}
	defer s.release(scratch)

	return s.analyzer.ClassifyFirstFrame(ctx, path)
}

// ClassifyImage 单张图片分类
func (s *MonitorService) ClassifyImage(ctx context.Context, img image.Image) (*models.ImagePrediction, error) {
	return s.analyzer.ClassifyImage(ctx, img)
}

// Health 健康检查；推理服务不可达时 model_loaded=false
func (s *MonitorService) Health(ctx context.Context) models.HealthReport {
	report := models.HealthReport{
		Status:    "healthy",
		Classes:   classifier.DefaultClasses,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   Version,
	}
	if s.classifier == nil {
		return report
	}

	status, err := s.classifier.Status(ctx)
	if err != nil {
		s.logger.Warn("Classifier health probe failed", zap.Error(err))
		return report
	}
	report.ModelLoaded = status.ModelLoaded
	if len(status.Classes) > 0 {
		report.Classes = status.Classes
	}
	return report
}

// saveUpload 将上传内容写入新的会话临时目录
func (s *MonitorService) saveUpload(upload Upload) (*engine.Scratch, string, error) {
	if upload.Body == nil {
		return nil, "", ErrMissingSource
	}
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.tempDir, "session-*")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session dir: %w", err)
	}
	scratch := engine.NewScratch(dir)

	path := filepath.Join(dir, uploadName(upload.Filename))
	f, err := os.Create(path)
	if err != nil {
		s.release(scratch)
		return nil, "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, upload.Body); err != nil {
		f.Close()
		s.release(scratch)
		return nil, "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		s.release(scratch)
		return nil, "", fmt.Errorf("failed to save upload: %w", err)
	}
	return scratch, path, nil
}

func (s *MonitorService) release(scratch *engine.Scratch) {
	if err := scratch.Release(); err != nil {
		s.logger.Warn("Failed to remove upload dir", zap.String("dir", scratch.Dir()), zap.Error(err))
	}
}

// uploadName 只保留文件名部分，防止路径穿越
func uploadName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." {
		return "upload.bin"
	}
	return base
}
