package engine

import (
	"context"

	"posture-monitor/internal/models"

	"go.uber.org/zap"
)

// DefaultRecordBuffer 每个会话待写观测的队列长度
const DefaultRecordBuffer = 64

// recordQueue 把观测记录移出判定循环：单个 goroutine 按顺序写入，
// 队列满时直接丢弃，判定循环只在 Pacer 上等待
type recordQueue struct {
	recorder ObservationRecorder
	ch       chan models.PositionObservation
	done     chan struct{}
	dropped  int64
	logger   *zap.Logger
}

func newRecordQueue(ctx context.Context, recorder ObservationRecorder, size int, logger *zap.Logger) *recordQueue {
	if size <= 0 {
		size = DefaultRecordBuffer
	}
	q := &recordQueue{
		recorder: recorder,
		ch:       make(chan models.PositionObservation, size),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go q.drain(ctx)
	return q
}

func (q *recordQueue) drain(ctx context.Context) {
	defer close(q.done)
	for obs := range q.ch {
		q.recorder.Record(ctx, obs)
	}
}

// Enqueue 不阻塞；只由会话 goroutine 调用
func (q *recordQueue) Enqueue(obs models.PositionObservation) {
	select {
	case q.ch <- obs:
	default:
		q.dropped++
		if q.dropped == 1 {
			q.logger.Warn("Observation recorder falling behind, dropping observations",
				zap.Int("buffer", cap(q.ch)),
				zap.Float64("timestamp", obs.SourceTimestamp),
			)
		}
	}
}

// Close 停止接收并等待已入队的观测写完，返回丢弃数
func (q *recordQueue) Close() int64 {
	close(q.ch)
	<-q.done
	return q.dropped
}
