package models

import "fmt"

// 流事件类型
const (
	EventTypeMetadata = "metadata"
	EventTypeFrame    = "frame"
	EventTypeAlert    = "alert"
	EventTypeError    = "error"
)

// MetadataEvent 会话开始时发送一次
type MetadataEvent struct {
	Type        string  `json:"type"`
	Duration    float64 `json:"duration"`
	FPS         float64 `json:"fps"`
	TotalFrames int64   `json:"total_frames"`
	IsLive      bool    `json:"is_live"`
}

// FrameEvent 每次采样判定一条
type FrameEvent struct {
	Type               string  `json:"type"`
	Timestamp          float64 `json:"timestamp"`
	TimestampFormatted string  `json:"timestamp_formatted"`
	FrameIndex         int64   `json:"frame_index"`
	Label              string  `json:"label"`
	Confidence         float64 `json:"confidence"`
}

// AlertEvent 告警触发时插入
type AlertEvent struct {
	Type         string  `json:"type"`
	AlertID      string  `json:"alert_id"`
	Timestamp    float64 `json:"timestamp"`
	Position     string  `json:"position"`
	HeldDuration float64 `json:"held_duration"`
	Message      string  `json:"message"`
}

// ErrorEvent 终止事件，收到后客户端应视为流结束
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamEvent 客户端解码用的通用结构（按 Type 区分有效字段）
type StreamEvent struct {
	Type string `json:"type"`

	// metadata
	Duration    float64 `json:"duration"`
	FPS         float64 `json:"fps"`
	TotalFrames int64   `json:"total_frames"`
	IsLive      bool    `json:"is_live"`

	// frame / alert
	Timestamp          float64 `json:"timestamp"`
	TimestampFormatted string  `json:"timestamp_formatted"`
	FrameIndex         int64   `json:"frame_index"`
	Label              string  `json:"label"`
	Confidence         float64 `json:"confidence"`
	AlertID            string  `json:"alert_id"`
	Position           string  `json:"position"`
	HeldDuration       float64 `json:"held_duration"`

	// alert / error
	Message string `json:"message"`
}

// NewFrameEvent 构建 frame 事件
func NewFrameEvent(obs PositionObservation) FrameEvent {
	return FrameEvent{
		Type:               EventTypeFrame,
		Timestamp:          obs.SourceTimestamp,
		TimestampFormatted: FormatTimestamp(obs.SourceTimestamp),
		FrameIndex:         obs.FrameIndex,
		Label:              obs.Label,
		Confidence:         obs.Confidence,
	}
}

// NewAlertEvent 构建 alert 事件
func NewAlertEvent(alert *Alert) AlertEvent {
	return AlertEvent{
		Type:         EventTypeAlert,
		AlertID:      alert.ID,
		Timestamp:    alert.SourceTime,
		Position:     alert.Position,
		HeldDuration: alert.HeldDuration,
		Message:      AlertMessage(alert.Position, alert.HeldDuration),
	}
}

// NewErrorEvent 构建 error 事件
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventTypeError, Message: message}
}

// AlertMessage 告警提示文案
func AlertMessage(position string, heldDuration float64) string {
	return fmt.Sprintf("Patient in %s for %.1fs", position, heldDuration)
}

// FormatTimestamp 秒数格式化为 MM:SS
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
