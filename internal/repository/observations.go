package repository

import (
	"context"
	"fmt"
	"time"

	"posture-monitor/internal/models"

	"go.uber.org/zap"
)

// clickhouseConn driver.Conn 中用到的部分
type clickhouseConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, dest any, query string, args ...any) error
}

// observationRow position_observations 行
type observationRow struct {
	ObservedAt      time.Time `ch:"observed_at"`
	SessionID       string    `ch:"session_id"`
	PatientID       string    `ch:"patient_id"`
	SourceTimestamp float64   `ch:"source_timestamp"`
	FrameIndex      int64     `ch:"frame_index"`
	Label           string    `ch:"label"`
	Confidence      float64   `ch:"confidence"`
	HeldDuration    float64   `ch:"held_duration"`
}

// ObservationsRepository 体位时间线（ClickHouse）
type ObservationsRepository struct {
	conn   clickhouseConn
	logger *zap.Logger
}

// NewObservationsRepository 创建体位时间线仓库
func NewObservationsRepository(conn clickhouseConn, logger *zap.Logger) *ObservationsRepository {
	return &ObservationsRepository{
		conn:   conn,
		logger: logger,
	}
}

// EnsureSchema 创建 position_observations 表
func (r *ObservationsRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS position_observations (
			observed_at      DateTime64(3),
			session_id       String,
			patient_id       String,
			source_timestamp Float64,
			frame_index      Int64,
			label            LowCardinality(String),
			confidence       Float64,
			held_duration    Float64
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(observed_at)
		ORDER BY (patient_id, observed_at)
		TTL toDateTime(observed_at) + INTERVAL 90 DAY
	`
	if err := r.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create position_observations table: %w", err)
	}
	return nil
}

// InsertObservation 追加一条观测
func (r *ObservationsRepository) InsertObservation(ctx context.Context, obs models.PositionObservation) error {
	query := `
		INSERT INTO position_observations
			(observed_at, session_id, patient_id, source_timestamp, frame_index, label, confidence, held_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := r.conn.Exec(ctx, query,
		obs.ObservedAt,
		obs.SessionID,
		obs.PatientID,
		obs.SourceTimestamp,
		obs.FrameIndex,
		obs.Label,
		obs.Confidence,
		obs.HeldDuration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert position observation: %w", err)
	}
	return nil
}

// Timeline 患者在 since 之后的观测，按时间正序，最多 limit 条
func (r *ObservationsRepository) Timeline(ctx context.Context, patientID string, since time.Time, limit int) ([]models.PositionObservation, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	query := `
		SELECT observed_at, session_id, patient_id, source_timestamp, frame_index, label, confidence, held_duration
		FROM position_observations
		WHERE patient_id = ? AND observed_at >= ?
		ORDER BY observed_at ASC
		LIMIT ?
	`
	var rows []observationRow
	if err := r.conn.Select(ctx, &rows, query, patientID, since, limit); err != nil {
		return nil, fmt.Errorf("failed to query position timeline: %w", err)
	}

	out := make([]models.PositionObservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.PositionObservation{
			SessionID:       row.SessionID,
			PatientID:       row.PatientID,
			SourceTimestamp: row.SourceTimestamp,
			FrameIndex:      row.FrameIndex,
			Label:           row.Label,
			Confidence:      row.Confidence,
			HeldDuration:    row.HeldDuration,
			ObservedAt:      row.ObservedAt,
		})
	}
	return out, nil
}
