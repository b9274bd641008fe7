package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"posture-monitor/internal/models"
	"posture-monitor/internal/notifier"
)

// ErrTimelineDisabled 未配置 ClickHouse
var ErrTimelineDisabled = errors.New("position timeline is not configured")

// LatestPositionReader 最新体位缓存（notifier.PositionRecorder）
type LatestPositionReader interface {
	LatestPosition(ctx context.Context, patientID string) (*models.LatestPosition, error)
	ListLatest(ctx context.Context) ([]*models.LatestPosition, error)
}

// TimelineReader 体位时序查询（repository.ObservationsRepository）
type TimelineReader interface {
	Timeline(ctx context.Context, patientID string, since time.Time, limit int) ([]models.PositionObservation, error)
}

const (
	defaultTimelineWindow = time.Hour
	defaultTimelineLimit  = 500
	maxTimelineLimit      = 5000
)

// PositionService 患者体位查询
type PositionService struct {
	latest   LatestPositionReader
	timeline TimelineReader
}

// NewPositionService timeline 可为 nil
func NewPositionService(latest LatestPositionReader, timeline TimelineReader) *PositionService {
	return &PositionService{latest: latest, timeline: timeline}
}

func (s *PositionService) Latest(ctx context.Context, patientID string) (*models.LatestPosition, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidArgument)
	}
	return s.latest.LatestPosition(ctx, patientID)
}

func (s *PositionService) ListLatest(ctx context.Context) ([]*models.LatestPosition, error) {
	return s.latest.ListLatest(ctx)
}

// Timeline 查询患者最近 window 内的体位观测；window/limit 非正时取默认值
func (s *PositionService) Timeline(ctx context.Context, patientID string, window time.Duration, limit int) ([]models.PositionObservation, error) {
	if s.timeline == nil {
		return nil, ErrTimelineDisabled
	}
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidArgument)
	}
	if window <= 0 {
		window = defaultTimelineWindow
	}
	if limit <= 0 {
		limit = defaultTimelineLimit
	}
	if limit > maxTimelineLimit {
		limit = maxTimelineLimit
	}
	return s.timeline.Timeline(ctx, patientID, time.Now().Add(-window), limit)
}

var _ LatestPositionReader = (*notifier.PositionRecorder)(nil)
