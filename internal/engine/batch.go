package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"posture-monitor/internal/classifier"
	"posture-monitor/internal/models"
	"posture-monitor/internal/source"

	"go.uber.org/zap"
)

var (
	// ErrNoFramesAnalyzed 区间内没有可分析的帧
	ErrNoFramesAnalyzed = errors.New("no frames analyzed")
	// ErrInvalidInterval end_time <= start_time
	ErrInvalidInterval = errors.New("end_time must be greater than start_time")
)

// DefaultIntervalStep 区间分析的抽帧步长
const DefaultIntervalStep = 10

// consistencyThreshold 主体位占比超过该值视为体位稳定
const consistencyThreshold = 0.8

// Analyzer 非流式的批量分析：不节拍、不告警，返回单个结果
type Analyzer struct {
	opener       source.Opener
	classifier   classifier.Classifier
	intervalStep int64
	logger       *zap.Logger
}

// NewAnalyzer 创建批量分析器
func NewAnalyzer(opener source.Opener, clf classifier.Classifier, intervalStep int, logger *zap.Logger) *Analyzer {
	if intervalStep <= 0 {
		intervalStep = DefaultIntervalStep
	}
	return &Analyzer{
		opener:       opener,
		classifier:   clf,
		intervalStep: int64(intervalStep),
		logger:       logger,
	}
}

// AnalyzeClip 整段分析：每 floor(fps) 帧取一帧
func (a *Analyzer) AnalyzeClip(ctx context.Context, path string) (*models.ClipAnalysis, error) {
	if err := classifier.CheckReady(ctx, a.classifier); err != nil {
		return nil, err
	}

	src, err := a.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	desc := src.Descriptor()
	sampler := NewStepSampler(0, int64(desc.NominalFPS))

	predictions := make([]models.FramePrediction, 0)
	err = a.scan(ctx, src, -1, func(frame source.Frame) bool {
		return sampler.Admit(frame.Index)
	}, func(frame source.Frame, pred classifier.Prediction) {
		ts := float64(frame.Index) / desc.NominalFPS
		predictions = append(predictions, models.FramePrediction{
			FrameNumber:        frame.Index,
			Timestamp:          ts,
			TimestampFormatted: models.FormatTimestamp(ts),
			Prediction:         pred.Label,
			Confidence:         pred.Confidence,
		})
	})
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(predictions))
	var confidenceSum float64
	for i, p := range predictions {
		labels[i] = p.Prediction
		confidenceSum += p.Confidence
	}

	changes := PositionChanges(predictions)

	result := &models.ClipAnalysis{
		Prediction:       "Unknown",
		FramePredictions: predictions,
		PositionChanges:  changes,
		MovementAnalysis: AnalyzeMovement(changes, labels),
		VideoMetadata: models.VideoMetadata{
			Duration:    desc.Duration,
			TotalFrames: desc.TotalFrames,
			FPS:         desc.NominalFPS,
		},
	}
	if dominant, _, ok := DominantLabel(labels); ok {
		result.Prediction = dominant
		result.Confidence = confidenceSum / float64(len(predictions))
	}

	a.logger.Info("Clip analysis finished",
		zap.String("source", desc.Source),
		zap.Int("predictions", len(predictions)),
		zap.Int("position_changes", len(changes)),
		zap.String("prediction", result.Prediction),
	)
	return result, nil
}

// AnalyzeInterval 区间分析：定位到 start 帧后每 intervalStep 帧取一帧，直到 end 帧（不含）
func (a *Analyzer) AnalyzeInterval(ctx context.Context, path string, start, end float64) (*models.IntervalAnalysis, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil, ErrInvalidInterval
	}
	if err := classifier.CheckReady(ctx, a.classifier); err != nil {
		return nil, err
	}

	src, err := a.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	desc := src.Descriptor()
	startFrame := int64(start * desc.NominalFPS)
	endFrame := int64(end * desc.NominalFPS)

	if err := src.Seek(startFrame); err != nil {
		return nil, fmt.Errorf("failed to seek to frame %d: %w", startFrame, err)
	}

	sampler := NewStepSampler(startFrame, a.intervalStep)
	predictions := make([]models.IntervalPrediction, 0)
	err = a.scan(ctx, src, endFrame, func(frame source.Frame) bool {
		return sampler.Admit(frame.Index)
	}, func(frame source.Frame, pred classifier.Prediction) {
		ts := float64(frame.Index) / desc.NominalFPS
		predictions = append(predictions, models.IntervalPrediction{
			Frame:              frame.Index,
			Timestamp:          ts,
			TimestampFormatted: models.FormatTimestamp(ts),
			Prediction:         pred.Label,
			Confidence:         pred.Confidence,
		})
	})
	if err != nil {
		return nil, err
	}
	if len(predictions) == 0 {
		return nil, ErrNoFramesAnalyzed
	}

	labels := make([]string, len(predictions))
	for i, p := range predictions {
		labels[i] = p.Prediction
	}
	dominant, distinct, _ := DominantLabel(labels)

	return &models.IntervalAnalysis{
		IntervalStart:    start,
		IntervalEnd:      end,
		DominantPosition: dominant,
		LabelChanged:     distinct > 1,
		Predictions:      predictions,
	}, nil
}

// ClassifyImage 单张图片分类
func (a *Analyzer) ClassifyImage(ctx context.Context, img image.Image) (*models.ImagePrediction, error) {
	if err := classifier.CheckReady(ctx, a.classifier); err != nil {
		return nil, err
	}
	return a.classifyOne(ctx, img)
}

// ClassifyFirstFrame 只对视频第一帧分类
func (a *Analyzer) ClassifyFirstFrame(ctx context.Context, path string) (*models.ImagePrediction, error) {
	if err := classifier.CheckReady(ctx, a.classifier); err != nil {
		return nil, err
	}

	src, err := a.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if _, err := src.Next(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoFramesAnalyzed
		}
		return nil, err
	}
	img, err := src.Decode()
	if err != nil {
		return nil, err
	}

	result, err := a.classifyOne(ctx, img)
	if err != nil {
		return nil, err
	}
	result.Note = "Analysis based on first frame only"
	return result, nil
}

func (a *Analyzer) classifyOne(ctx context.Context, img image.Image) (*models.ImagePrediction, error) {
	pred, err := a.classifier.Classify(ctx, ToGray(img))
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	classes := classifier.DefaultClasses
	if status, err := a.classifier.Status(ctx); err == nil && len(status.Classes) > 0 {
		classes = status.Classes
	}
	return &models.ImagePrediction{
		Prediction:    pred.Label,
		Confidence:    pred.Confidence,
		Probabilities: pred.Probabilities,
		AllClasses:    classes,
	}, nil
}

// scan 顺序读帧直到结束或 endFrame（< 0 表示不限），对放行的帧分类
func (a *Analyzer) scan(
	ctx context.Context,
	src source.Source,
	endFrame int64,
	admit func(source.Frame) bool,
	collect func(source.Frame, classifier.Prediction),
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if endFrame >= 0 && frame.Index >= endFrame {
			return nil
		}
		if !admit(frame) {
			continue
		}

		img, err := src.Decode()
		if err != nil {
			return err
		}
		pred, err := a.classifier.Classify(ctx, ToGray(img))
		if err != nil {
			return fmt.Errorf("classification failed at frame %d: %w", frame.Index, err)
		}
		collect(frame, pred)
	}
}

// PositionChanges 相邻采样之间的体位变化
func PositionChanges(predictions []models.FramePrediction) []models.PositionChange {
	changes := make([]models.PositionChange, 0)
	if len(predictions) == 0 {
		return changes
	}
	current := predictions[0].Prediction
	for _, p := range predictions[1:] {
		if p.Prediction != current {
			changes = append(changes, models.PositionChange{
				From:        current,
				To:          p.Prediction,
				Timestamp:   p.Timestamp,
				FrameNumber: p.FrameNumber,
			})
			current = p.Prediction
		}
	}
	return changes
}

// AnalyzeMovement 汇总体位变化与一致性
func AnalyzeMovement(changes []models.PositionChange, labels []string) models.MovementAnalysis {
	if len(changes) == 0 {
		return models.MovementAnalysis{
			MovementDetected: false,
			Summary:          "No position changes detected during video",
			IsConsistent:     true,
			ConsistencyScore: 1.0,
		}
	}
	if len(labels) == 0 {
		return models.MovementAnalysis{Summary: "No frames analyzed"}
	}

	dominant, _, _ := DominantLabel(labels)
	count := 0
	for _, l := range labels {
		if l == dominant {
			count++
		}
	}
	score := float64(count) / float64(len(labels))

	return models.MovementAnalysis{
		MovementDetected: true,
		Summary:          fmt.Sprintf("Movement detected: %d position changes", len(changes)),
		IsConsistent:     score > consistencyThreshold,
		ConsistencyScore: score,
		DominantPosition: dominant,
	}
}

// DominantLabel 出现次数最多的标签；并列时取最先出现的
// 返回 (标签, 不同标签数, 是否非空)
func DominantLabel(labels []string) (string, int, bool) {
	if len(labels) == 0 {
		return "", 0, false
	}
	counts := make(map[string]int, 4)
	order := make([]string, 0, 4)
	for _, l := range labels {
		if _, seen := counts[l]; !seen {
			order = append(order, l)
		}
		counts[l]++
	}

	best := order[0]
	for _, l := range order[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best, len(order), true
}
