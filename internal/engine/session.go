package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"posture-monitor/internal/classifier"
	"posture-monitor/internal/models"
	"posture-monitor/internal/source"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request 一次流式分析请求
type Request struct {
	SessionID string
	Source    string
	Patient   Patient
	// Scratch 会话拥有的临时目录，URL 来源为 nil
	Scratch *Scratch
}

// Summary 会话结束时的统计
type Summary struct {
	SessionID string
	Frames    int64 // 读取的原始帧
	Decisions int64 // 分类判定次数
	Alerts    int64
	Events    int
	Reason    string // eos, error, disconnect

	// DroppedObservations 记录队列已满时丢弃的观测
	DroppedObservations int64
}

// 结束原因
const (
	ReasonEndOfSource = "eos"
	ReasonError       = "error"
	ReasonDisconnect  = "disconnect"
)

// RunnerConfig 会话运行参数
type RunnerConfig struct {
	Policy           Policy
	DecisionInterval float64 // 秒（源时间）
	Clock            Clock
	RecordBuffer     int // 观测记录队列长度，<= 0 时取 DefaultRecordBuffer
}

// Runner 执行流式分析会话；自身无会话状态，可被多个会话并发使用
type Runner struct {
	opener     source.Opener
	classifier classifier.Classifier
	sink       AlertSink
	recorder   ObservationRecorder
	cfg        RunnerConfig
	logger     *zap.Logger
}

// NewRunner 创建会话执行器；sink / recorder 可为 nil
func NewRunner(
	opener source.Opener,
	clf classifier.Classifier,
	sink AlertSink,
	recorder ObservationRecorder,
	cfg RunnerConfig,
	logger *zap.Logger,
) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.DecisionInterval <= 0 {
		cfg.DecisionInterval = 1.0
	}
	if cfg.Policy.HoldThreshold <= 0 && cfg.Policy.RealertInterval <= 0 {
		cfg.Policy = DefaultPolicy()
	}
	return &Runner{
		opener:     opener,
		classifier: clf,
		sink:       sink,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger,
	}
}

// session 单个会话的全部可变状态
type session struct {
	req      Request
	emitter  *Emitter
	sampler  *DecisionSampler
	tracker  *StabilityTracker
	pacer    *Pacer
	records  *recordQueue
	summary  Summary
	logger   *zap.Logger
	errorSet bool
}

// Run 执行一次会话，事件以 NDJSON 写入 w
// 任何退出路径都会释放 req.Scratch 与已打开的来源
func (r *Runner) Run(ctx context.Context, req Request, w io.Writer) (Summary, error) {
	defer func() {
		if err := req.Scratch.Release(); err != nil {
			r.logger.Warn("Failed to remove session scratch dir",
				zap.String("session_id", req.SessionID),
				zap.String("dir", req.Scratch.Dir()),
				zap.Error(err),
			)
		}
	}()

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	s := &session{
		req:     req,
		emitter: NewEmitter(w),
		sampler: NewDecisionSampler(r.cfg.DecisionInterval),
		tracker: NewStabilityTracker(r.cfg.Policy),
		summary: Summary{SessionID: req.SessionID},
		logger: r.logger.With(
			zap.String("session_id", req.SessionID),
			zap.String("patient_id", req.Patient.ID),
		),
	}

	if r.recorder != nil {
		s.records = newRecordQueue(ctx, r.recorder, r.cfg.RecordBuffer, s.logger)
	}

	err := r.run(ctx, s)
	s.summary.Events = s.emitter.Count()
	if s.records != nil {
		s.summary.DroppedObservations = s.records.Close()
	}

	switch {
	case err == nil:
		s.summary.Reason = ReasonEndOfSource
	case errors.Is(err, ErrConsumerGone):
		s.summary.Reason = ReasonDisconnect
	default:
		s.summary.Reason = ReasonError
	}

	s.logger.Info("Stream session finished",
		zap.String("reason", s.summary.Reason),
		zap.Int64("frames", s.summary.Frames),
		zap.Int64("decisions", s.summary.Decisions),
		zap.Int64("alerts", s.summary.Alerts),
		zap.Int("events", s.summary.Events),
		zap.Int64("dropped_observations", s.summary.DroppedObservations),
		zap.Error(err),
	)
	return s.summary, err
}

func (r *Runner) run(ctx context.Context, s *session) error {
	// 1. 模型可用性检查（在任何事件之前）
	if err := classifier.CheckReady(ctx, r.classifier); err != nil {
		return r.fail(s, err, "Model not loaded")
	}

	// 2. 打开来源
	src, err := r.opener.Open(ctx, s.req.Source)
	if err != nil {
		msg := fmt.Sprintf("Could not open source: %s", s.req.Source)
		var openErr *source.OpenError
		if errors.As(err, &openErr) {
			msg = fmt.Sprintf("Could not open source: %s", openErr.Source)
		}
		return r.fail(s, err, msg)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			s.logger.Warn("Failed to close video source", zap.Error(cerr))
		}
	}()

	// 3. 元信息
	desc := src.Descriptor()
	if err := r.emit(s, models.MetadataEvent{
		Type:        models.EventTypeMetadata,
		Duration:    desc.Duration,
		FPS:         desc.NominalFPS,
		TotalFrames: desc.TotalFrames,
		IsLive:      desc.IsLive(),
	}); err != nil {
		return err
	}

	s.logger.Info("Stream session started",
		zap.String("source", desc.Source),
		zap.Float64("fps", desc.NominalFPS),
		zap.Int64("total_frames", desc.TotalFrames),
		zap.Bool("is_live", desc.IsLive()),
	)

	// 4. 逐帧处理，节拍从此刻开始计时
	s.pacer = NewPacer(r.cfg.Clock)
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrConsumerGone, ctx.Err())
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrConsumerGone, ctx.Err())
			}
			return r.fail(s, err, fmt.Sprintf("Failed to read frame: %v", err))
		}
		s.summary.Frames++

		if !s.sampler.Admit(frame.Timestamp) {
			continue
		}

		if err := r.decide(ctx, s, src, frame); err != nil {
			return err
		}
	}
}

// decide 处理一次采样判定：解码 -> 分类 -> 节拍 -> 状态机 -> 输出
func (r *Runner) decide(ctx context.Context, s *session, src source.Source, frame source.Frame) error {
	img, err := src.Decode()
	if err != nil {
		if !errors.Is(err, source.ErrDecodeFault) {
			err = fmt.Errorf("%w: %v", source.ErrDecodeFault, err)
		}
		return r.fail(s, err, fmt.Sprintf("Failed to decode frame %d: %v", frame.Index, err))
	}

	pred, err := r.classifier.Classify(ctx, ToGray(img))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrConsumerGone, ctx.Err())
		}
		return r.fail(s, err, fmt.Sprintf("Classification failed at frame %d: %v", frame.Index, err))
	}
	s.summary.Decisions++

	if _, err := s.pacer.Wait(ctx, frame.Timestamp); err != nil {
		return fmt.Errorf("%w: %v", ErrConsumerGone, err)
	}

	if trigger, fire := s.tracker.Observe(frame.Timestamp, pred.Label); fire {
		if err := r.raiseAlert(ctx, s, trigger); err != nil {
			return err
		}
	}

	obs := models.PositionObservation{
		SessionID:       s.req.SessionID,
		PatientID:       s.req.Patient.ID,
		SourceTimestamp: frame.Timestamp,
		FrameIndex:      frame.Index,
		Label:           pred.Label,
		Confidence:      pred.Confidence,
		HeldDuration:    s.tracker.HeldDuration(frame.Timestamp),
		ObservedAt:      r.cfg.Clock.Now(),
	}
	if err := r.emit(s, models.NewFrameEvent(obs)); err != nil {
		return err
	}

	if s.records != nil {
		s.records.Enqueue(obs)
	}
	return nil
}

// raiseAlert 持久化失败只记录日志，告警事件照常输出
func (r *Runner) raiseAlert(ctx context.Context, s *session, trigger Trigger) error {
	alert := BuildAlert(s.req.Patient, trigger, r.cfg.Clock.Now())
	s.summary.Alerts++

	if r.sink != nil {
		if err := r.sink.Persist(ctx, alert); err != nil {
			s.logger.Error("Failed to persist alert",
				zap.String("alert_id", alert.ID),
				zap.String("position", alert.Position),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("No-movement alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("position", alert.Position),
		zap.Float64("held_duration", alert.HeldDuration),
		zap.Float64("timestamp", trigger.Timestamp),
	)

	return r.emit(s, models.NewAlertEvent(alert))
}

// emit 写失败说明客户端已断开，原样返回；其他错误（事件无法编码）按内部故障终止会话
func (r *Runner) emit(s *session, event any) error {
	err := s.emitter.Emit(event)
	if err == nil || errors.Is(err, ErrConsumerGone) {
		return err
	}
	return r.fail(s, err, fmt.Sprintf("Failed to encode stream event: %v", err))
}

// fail 输出唯一的终止 error 事件并返回原始错误
func (r *Runner) fail(s *session, cause error, message string) error {
	if s.errorSet {
		return cause
	}
	s.errorSet = true

	if err := s.emitter.Emit(models.NewErrorEvent(message)); err != nil {
		s.logger.Warn("Failed to emit error event", zap.Error(err))
	}
	s.logger.Error("Stream session failed", zap.String("message", message), zap.Error(cause))
	return cause
}
