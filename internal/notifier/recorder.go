package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"posture-monitor/internal/models"
	"posture-monitor/internal/store"

	"go.uber.org/zap"
)

// ObservationStore 体位时序存储（ClickHouse）
type ObservationStore interface {
	InsertObservation(ctx context.Context, obs models.PositionObservation) error
}

// ErrPositionNotFound 该患者没有缓存的最新体位
var ErrPositionNotFound = errors.New("position not found")

const recordTimeout = 2 * time.Second

// PositionRecorder 记录每一帧的体位观测：
// 写入时序表，并刷新 KV 中该患者的最新体位
type PositionRecorder struct {
	timeline ObservationStore
	kv       store.KV
	prefix   string
	ttl      time.Duration
	logger   *zap.Logger
}

// NewPositionRecorder 创建体位记录器；timeline 可为 nil
func NewPositionRecorder(timeline ObservationStore, kv store.KV, prefix string, ttl time.Duration, logger *zap.Logger) *PositionRecorder {
	return &PositionRecorder{
		timeline: timeline,
		kv:       kv,
		prefix:   prefix,
		ttl:      ttl,
		logger:   logger,
	}
}

// Record 实现 engine.ObservationRecorder；未标记患者的观测不记录
func (r *PositionRecorder) Record(ctx context.Context, obs models.PositionObservation) {
	if obs.PatientID == "" {
		return
	}
	// 会话结束时 ctx 可能已取消，写入使用独立超时
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if r.timeline != nil {
		if err := r.timeline.InsertObservation(ctx, obs); err != nil {
			r.logger.Warn("Failed to insert position observation",
				zap.String("session_id", obs.SessionID),
				zap.String("patient_id", obs.PatientID),
				zap.Error(err),
			)
		}
	}

	if r.kv == nil {
		return
	}
	latest := models.LatestPosition{
		PatientID:          obs.PatientID,
		SessionID:          obs.SessionID,
		Label:              obs.Label,
		Confidence:         obs.Confidence,
		HeldDuration:       obs.HeldDuration,
		Timestamp:          obs.SourceTimestamp,
		TimestampFormatted: models.FormatTimestamp(obs.SourceTimestamp),
		ObservedAt:         obs.ObservedAt.Unix(),
	}
	data, err := json.Marshal(latest)
	if err != nil {
		r.logger.Warn("Failed to marshal latest position", zap.Error(err))
		return
	}
	if err := r.kv.Set(ctx, r.prefix+obs.PatientID, string(data), r.ttl); err != nil {
		r.logger.Warn("Failed to cache latest position",
			zap.String("patient_id", obs.PatientID),
			zap.Error(err),
		)
	}
}

// LatestPosition 读取患者最新体位
func (r *PositionRecorder) LatestPosition(ctx context.Context, patientID string) (*models.LatestPosition, error) {
	raw, err := r.kv.Get(ctx, r.prefix+patientID)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to read latest position: %w", err)
	}
	var latest models.LatestPosition
	if err := json.Unmarshal([]byte(raw), &latest); err != nil {
		return nil, fmt.Errorf("failed to decode latest position: %w", err)
	}
	return &latest, nil
}

// ListLatest 列出所有仍在缓存中的患者最新体位，按 patient_id 排序
func (r *PositionRecorder) ListLatest(ctx context.Context) ([]*models.LatestPosition, error) {
	keys, err := r.kv.ScanKeys(ctx, r.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan position keys: %w", err)
	}

	positions := make([]*models.LatestPosition, 0, len(keys))
	for _, key := range keys {
		latest, err := r.LatestPosition(ctx, strings.TrimPrefix(key, r.prefix))
		if err != nil {
			// 扫描与读取之间过期
			if errors.Is(err, ErrPositionNotFound) {
				continue
			}
			return nil, err
		}
		positions = append(positions, latest)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].PatientID < positions[j].PatientID
	})
	return positions, nil
}
