package models

import (
	"time"
)

const (
	// AlertCategoryNoMovement 长时间未翻身
	AlertCategoryNoMovement = "no-movement"
	// AlertTypeNoMovement 告警展示名称
	AlertTypeNoMovement = "No Movement Detected"

	AlertStatusPending      = "pending"
	AlertStatusAcknowledged = "acknowledged"

	// AnalysisResultVideo 告警来源：视频流分析
	AnalysisResultVideo = "Video Analysis"
)

// Alert 体位告警（对应 alerts 表）
type Alert struct {
	ID             string     `json:"id" db:"id"`
	PatientID      string     `json:"patientId" db:"patient_id"`
	PatientName    string     `json:"patientName" db:"patient_name"`
	Position       string     `json:"position" db:"position"`
	HeldDuration   float64    `json:"duration" db:"duration"` // 秒
	Category       string     `json:"category" db:"category"` // no-movement
	Type           string     `json:"type" db:"type"`
	Timestamp      time.Time  `json:"timestamp" db:"alert_time"`
	SourceTime     float64    `json:"source_time" db:"source_time"` // 触发时的视频时间（秒）
	Status         string     `json:"status" db:"status"`           // pending, acknowledged
	AcknowledgedBy *string    `json:"acknowledgedBy,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty" db:"acknowledged_at"`
	AnalysisResult string     `json:"analysis_result" db:"analysis_result"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IsAcknowledged 是否已被确认
func (a *Alert) IsAcknowledged() bool {
	return a.Status == AlertStatusAcknowledged
}
