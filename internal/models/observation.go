package models

import "time"

// PositionObservation 单次采样判定的体位观测
type PositionObservation struct {
	SessionID       string    `json:"session_id"`
	PatientID       string    `json:"patient_id"`
	SourceTimestamp float64   `json:"source_timestamp"` // 视频时间（秒）
	FrameIndex      int64     `json:"frame_index"`
	Label           string    `json:"label"`
	Confidence      float64   `json:"confidence"`
	HeldDuration    float64   `json:"held_duration"`
	ObservedAt      time.Time `json:"observed_at"`
}
