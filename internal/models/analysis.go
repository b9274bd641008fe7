package models

// FramePrediction 整段分析中的单帧结果
type FramePrediction struct {
	FrameNumber        int64   `json:"frame_number"`
	Timestamp          float64 `json:"timestamp"`
	TimestampFormatted string  `json:"timestamp_formatted"`
	Prediction         string  `json:"prediction"`
	Confidence         float64 `json:"confidence"`
}

// PositionChange 相邻采样之间的体位变化
type PositionChange struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Timestamp   float64 `json:"timestamp"`
	FrameNumber int64   `json:"frame_number"`
}

// MovementAnalysis 体位变化汇总
type MovementAnalysis struct {
	MovementDetected bool    `json:"movement_detected"`
	Summary          string  `json:"summary"`
	IsConsistent     bool    `json:"is_consistent"`
	ConsistencyScore float64 `json:"consistency_score"`
	DominantPosition string  `json:"dominant_position,omitempty"`
}

// VideoMetadata 视频元信息
type VideoMetadata struct {
	Duration    float64 `json:"duration"`
	TotalFrames int64   `json:"total_frames"`
	FPS         float64 `json:"fps"`
}

// ClipAnalysis 整段视频分析结果
type ClipAnalysis struct {
	Prediction       string            `json:"prediction"`
	Confidence       float64           `json:"confidence"`
	FramePredictions []FramePrediction `json:"frame_predictions"`
	PositionChanges  []PositionChange  `json:"position_changes"`
	MovementAnalysis MovementAnalysis  `json:"movement_analysis"`
	VideoMetadata    VideoMetadata     `json:"video_metadata"`
}

// IntervalPrediction 区间分析中的单帧结果
type IntervalPrediction struct {
	Frame              int64   `json:"frame"`
	Timestamp          float64 `json:"timestamp"`
	TimestampFormatted string  `json:"timestamp_formatted"`
	Prediction         string  `json:"prediction"`
	Confidence         float64 `json:"confidence"`
}

// IntervalAnalysis 区间分析结果
type IntervalAnalysis struct {
	IntervalStart    float64              `json:"interval_start"`
	IntervalEnd      float64              `json:"interval_end"`
	DominantPosition string               `json:"dominant_position"`
	LabelChanged     bool                 `json:"label_changed"`
	Predictions      []IntervalPrediction `json:"predictions"`
}

// LatestPosition 患者最近一次体位（缓存于 Redis）
type LatestPosition struct {
	PatientID          string  `json:"patient_id"`
	SessionID          string  `json:"session_id"`
	Label              string  `json:"label"`
	Confidence         float64 `json:"confidence"`
	HeldDuration       float64 `json:"held_duration"`
	Timestamp          float64 `json:"timestamp"`
	TimestampFormatted string  `json:"timestamp_formatted"`
	ObservedAt         int64   `json:"observed_at"` // unix 秒
}

// ImagePrediction 单张图片（或视频首帧）分类结果
type ImagePrediction struct {
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	AllClasses    []string           `json:"all_classes"`
	Note          string             `json:"note,omitempty"`
}

// HealthReport 健康检查响应
type HealthReport struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Classes     []string `json:"classes"`
	Timestamp   string   `json:"timestamp"`
	Version     string   `json:"version"`
}
