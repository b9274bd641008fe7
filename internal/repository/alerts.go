package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"posture-monitor/internal/models"

	"go.uber.org/zap"
)

// ErrAlertNotFound 告警不存在
var ErrAlertNotFound = errors.New("alert not found")

// AlertsRepository 体位告警仓库（PostgreSQL）
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建告警仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

const alertColumns = `id, patient_id, patient_name, position, duration, category, type,
		alert_time, source_time, status, acknowledged_by, acknowledged_at, analysis_result, created_at`

// EnsureSchema 创建 alerts 表（幂等）
func (r *AlertsRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			patient_id      TEXT NOT NULL DEFAULT '',
			patient_name    TEXT NOT NULL DEFAULT '',
			position        TEXT NOT NULL,
			duration        DOUBLE PRECISION NOT NULL,
			category        TEXT NOT NULL,
			type            TEXT NOT NULL,
			alert_time      TIMESTAMPTZ NOT NULL,
			source_time     DOUBLE PRECISION NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'pending',
			acknowledged_by TEXT,
			acknowledged_at TIMESTAMPTZ,
			analysis_result TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_time ON alerts (status, alert_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_patient ON alerts (patient_id, alert_time DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure alerts schema: %w", err)
		}
	}
	return nil
}

// CreateAlert 插入告警
func (r *AlertsRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("alert id is required")
	}

	query := `
		INSERT INTO alerts (
			id, patient_id, patient_name, position, duration, category, type,
			alert_time, source_time, status, analysis_result, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.PatientID,
		alert.PatientName,
		alert.Position,
		alert.HeldDuration,
		alert.Category,
		alert.Type,
		alert.Timestamp,
		alert.SourceTime,
		alert.Status,
		alert.AnalysisResult,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	r.logger.Debug("Alert saved", zap.String("alert_id", alert.ID))
	return nil
}

// GetAlert 根据 id 获取告警
func (r *AlertsRepository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	if id == "" {
		return nil, fmt.Errorf("alert id is required")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// ListAlerts 按时间倒序列出告警，status 为空时不过滤
func (r *AlertsRepository) ListAlerts(ctx context.Context, status string) ([]*models.Alert, error) {
	var (
		where []string
		args  []interface{}
	)
	if status = strings.TrimSpace(status); status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY alert_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert 确认告警；首次确认生效
// 已被确认时返回 (首个确认人, true, nil)
func (r *AlertsRepository) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) (string, bool, error) {
	if id == "" {
		return "", false, fmt.Errorf("alert id is required")
	}

	query := `
		UPDATE alerts
		SET status = $1, acknowledged_by = $2, acknowledged_at = NOW()
		WHERE id = $3 AND status <> $1
	`
	result, err := r.db.ExecContext(ctx, query, models.AlertStatusAcknowledged, acknowledgedBy, id)
	if err != nil {
		return "", false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return acknowledgedBy, false, nil
	}

	// 未更新：不存在或已被确认
	var by sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT acknowledged_by FROM alerts WHERE id = $1`, id).Scan(&by)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, ErrAlertNotFound
		}
		return "", false, fmt.Errorf("failed to get alert: %w", err)
	}
	return by.String, true, nil
}

// DeleteAlert 删除告警
func (r *AlertsRepository) DeleteAlert(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("alert id is required")
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		alert          models.Alert
		acknowledgedBy sql.NullString
		acknowledgedAt sql.NullTime
	)
	err := row.Scan(
		&alert.ID,
		&alert.PatientID,
		&alert.PatientName,
		&alert.Position,
		&alert.HeldDuration,
		&alert.Category,
		&alert.Type,
		&alert.Timestamp,
		&alert.SourceTime,
		&alert.Status,
		&acknowledgedBy,
		&acknowledgedAt,
		&alert.AnalysisResult,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = &acknowledgedBy.String
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	return &alert, nil
}
