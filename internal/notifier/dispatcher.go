package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	commonredis "posture-monitor/common/redis"
	"posture-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertStore 告警持久化（Postgres）
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
}

// StreamWriter 告警流写入
type StreamWriter interface {
	PublishAlert(ctx context.Context, alert *models.Alert) error
}

// Publisher MQTT 发布（common/mqtt.Client 满足该接口）
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// RedisStreamWriter 通过 XADD 写入告警流
type RedisStreamWriter struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStreamWriter 创建告警流写入器
func NewRedisStreamWriter(client redis.Cmdable, stream string, maxLen int64) *RedisStreamWriter {
	return &RedisStreamWriter{client: client, stream: stream, maxLen: maxLen}
}

func (w *RedisStreamWriter) PublishAlert(ctx context.Context, alert *models.Alert) error {
	_, err := commonredis.PublishJSONToStream(ctx, w.client, w.stream, w.maxLen, alert)
	return err
}

// AlertDispatcher 告警落库后扇出到 Redis 告警流与 MQTT
// 只有落库失败会返回错误；扇出失败仅记录日志
type AlertDispatcher struct {
	store        AlertStore
	stream       StreamWriter
	publisher    Publisher
	topicPattern string
	logger       *zap.Logger
}

// DispatcherOption 可选扇出目标
type DispatcherOption func(*AlertDispatcher)

// WithStream 启用 Redis 告警流
func WithStream(w StreamWriter) DispatcherOption {
	return func(d *AlertDispatcher) { d.stream = w }
}

// WithMQTT 启用 MQTT 发布，topicPattern 中的 {patient_id} 会被替换
func WithMQTT(p Publisher, topicPattern string) DispatcherOption {
	return func(d *AlertDispatcher) {
		d.publisher = p
		d.topicPattern = topicPattern
	}
}

// NewAlertDispatcher 创建告警分发器；store 为 nil 时跳过落库
func NewAlertDispatcher(store AlertStore, logger *zap.Logger, opts ...DispatcherOption) *AlertDispatcher {
	d := &AlertDispatcher{store: store, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Persist 实现 engine.AlertSink
func (d *AlertDispatcher) Persist(ctx context.Context, alert *models.Alert) error {
	if d.store != nil {
		if err := d.store.CreateAlert(ctx, alert); err != nil {
			return fmt.Errorf("failed to persist alert: %w", err)
		}
	}

	if d.stream != nil {
		if err := d.stream.PublishAlert(ctx, alert); err != nil {
			d.logger.Warn("Failed to publish alert to stream",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	if d.publisher != nil {
		topic := AlertTopic(d.topicPattern, alert.PatientID)
		payload, err := json.Marshal(alert)
		if err != nil {
			d.logger.Warn("Failed to marshal alert for MQTT", zap.String("alert_id", alert.ID), zap.Error(err))
			return nil
		}
		if err := d.publisher.Publish(topic, false, payload); err != nil {
			d.logger.Warn("Failed to publish alert to MQTT",
				zap.String("alert_id", alert.ID),
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}

	return nil
}

// AlertTopic 生成患者告警主题；未标记患者时使用 "unassigned"
func AlertTopic(pattern, patientID string) string {
	if patientID == "" {
		patientID = "unassigned"
	}
	return strings.ReplaceAll(pattern, "{patient_id}", patientID)
}
