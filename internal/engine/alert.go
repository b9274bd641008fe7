package engine

import (
	"context"
	"time"

	"posture-monitor/internal/models"

	"github.com/google/uuid"
)

// AlertSink 告警持久化端口；失败只记录日志，不中断会话
type AlertSink interface {
	Persist(ctx context.Context, alert *models.Alert) error
}

// ObservationRecorder 体位观测记录（时序库 / 最新体位缓存），尽力而为
type ObservationRecorder interface {
	Record(ctx context.Context, obs models.PositionObservation)
}

// Patient 告警归属的患者（仅用于标记告警记录）
type Patient struct {
	ID   string
	Name string
}

// BuildAlert 根据触发结果构建告警记录
func BuildAlert(patient Patient, trigger Trigger, now time.Time) *models.Alert {
	return &models.Alert{
		ID:             uuid.New().String(),
		PatientID:      patient.ID,
		PatientName:    patient.Name,
		Position:       trigger.Position,
		HeldDuration:   trigger.HeldDuration,
		Category:       models.AlertCategoryNoMovement,
		Type:           models.AlertTypeNoMovement,
		Timestamp:      now,
		SourceTime:     trigger.Timestamp,
		Status:         models.AlertStatusPending,
		AnalysisResult: models.AnalysisResultVideo,
		CreatedAt:      now,
	}
}
