package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"posture-monitor/internal/models"
	"posture-monitor/internal/repository"

	"go.uber.org/zap"
)

var (
	// ErrInvalidArgument 请求参数不合法
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlertsDisabled 未配置告警数据库
	ErrAlertsDisabled = errors.New("alert storage is not configured")
)

// AlertRepository 告警存储
type AlertRepository interface {
	ListAlerts(ctx context.Context, status string) ([]*models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) (string, bool, error)
	DeleteAlert(ctx context.Context, id string) error
}

// AcknowledgeResult 确认结果
type AcknowledgeResult struct {
	ID                  string
	AcknowledgedBy      string // 首个确认人
	AlreadyAcknowledged bool
}

// AlertService 告警服务层
// 业务规则：
// - status 过滤只接受 pending / acknowledged
// - 首次确认生效，重复确认返回首个确认人
type AlertService struct {
	repo   AlertRepository
	logger *zap.Logger
}

// NewAlertService 创建告警服务；repo 为 nil 表示未启用数据库
func NewAlertService(repo AlertRepository, logger *zap.Logger) *AlertService {
	return &AlertService{repo: repo, logger: logger}
}

// ListAlerts 按时间倒序列出告警
func (s *AlertService) ListAlerts(ctx context.Context, status string) ([]*models.Alert, error) {
	if s.repo == nil {
		return nil, ErrAlertsDisabled
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", models.AlertStatusPending, models.AlertStatusAcknowledged:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}

	alerts, err := s.repo.ListAlerts(ctx, status)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.String("status", status), zap.Error(err))
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Acknowledge 确认告警
func (s *AlertService) Acknowledge(ctx context.Context, id, acknowledgedBy string) (*AcknowledgeResult, error) {
	if s.repo == nil {
		return nil, ErrAlertsDisabled
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: No alert ID provided", ErrInvalidArgument)
	}
	acknowledgedBy = strings.TrimSpace(acknowledgedBy)
	if acknowledgedBy == "" {
		acknowledgedBy = "User"
	}

	by, already, err := s.repo.AcknowledgeAlert(ctx, id, acknowledgedBy)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return nil, err
		}
		s.logger.Error("Failed to acknowledge alert", zap.String("alert_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	s.logger.Info("Alert acknowledged",
		zap.String("alert_id", id),
		zap.String("acknowledged_by", by),
		zap.Bool("already_acknowledged", already),
	)
	return &AcknowledgeResult{ID: id, AcknowledgedBy: by, AlreadyAcknowledged: already}, nil
}

// DeleteAlert 删除告警
func (s *AlertService) DeleteAlert(ctx context.Context, id string) error {
	if s.repo == nil {
		return ErrAlertsDisabled
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: No alert ID provided", ErrInvalidArgument)
	}
	if err := s.repo.DeleteAlert(ctx, id); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return err
		}
		s.logger.Error("Failed to delete alert", zap.String("alert_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	s.logger.Info("Alert deleted", zap.String("alert_id", id))
	return nil
}
