package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	commoncfg "posture-monitor/common/config"

	"github.com/joho/godotenv"
)

// Config posture-monitor 服务配置
type Config struct {
	HTTP struct {
		Addr        string
		MaxUploadMB int64  // 上传文件大小上限（MB）
		TempDir     string // 上传文件临时目录（每个会话一个子目录）
	}

	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	Redis struct {
		commoncfg.RedisConfig
		Enabled           bool
		AlertStream       string        // 告警流名称，如 "posture:alerts"
		AlertStreamMaxLen int64         // 告警流近似最大长度
		PositionKeyPrefix string        // 最新体位缓存键前缀，如 "posture:patient:"
		PositionTTL       time.Duration // 最新体位缓存 TTL
	}

	MQTT struct {
		commoncfg.MQTTConfig
		Enabled    bool
		AlertTopic string // 告警主题模板，如 "posture/alerts/{patient_id}"
	}

	ClickHouse struct {
		commoncfg.ClickHouseConfig
		Enabled bool
	}

	Classifier struct {
		URL           string        // 推理服务地址
		Timeout       time.Duration // 单次推理超时
		RetryCount    int
		MaxConcurrent int64 // 同时进行的推理请求上限
	}

	// Monitor 体位监测策略
	Monitor struct {
		HoldThreshold    float64 // 同一体位持续多少秒触发告警
		RealertInterval  float64 // 距上次告警多少秒后才允许再次告警
		DecisionInterval float64 // 每隔多少秒（源时间）做一次判定
		FallbackFPS      float64 // 解码器帧率无效时的替代值
		IntervalStep     int     // 区间分析的抽帧步长
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	// 存在 .env 时先加载（不覆盖已有环境变量）
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":5000")
	cfg.HTTP.MaxUploadMB = int64(getEnvInt("HTTP_MAX_UPLOAD_MB", 500))
	cfg.HTTP.TempDir = getEnv("UPLOAD_TEMP_DIR", filepath.Join(os.TempDir(), "posture-monitor"))

	cfg.DBEnabled = getEnvBool("DB_ENABLED", true)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "posture")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.AlertStream = getEnv("REDIS_ALERT_STREAM", "posture:alerts")
	cfg.Redis.AlertStreamMaxLen = int64(getEnvInt("REDIS_ALERT_STREAM_MAXLEN", 10000))
	cfg.Redis.PositionKeyPrefix = getEnv("REDIS_POSITION_PREFIX", "posture:patient:")
	cfg.Redis.PositionTTL = time.Duration(getEnvInt("REDIS_POSITION_TTL_SEC", 60)) * time.Second

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "posture-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.AlertTopic = getEnv("MQTT_ALERT_TOPIC", "posture/alerts/{patient_id}")

	cfg.ClickHouse.Enabled = getEnvBool("CLICKHOUSE_ENABLED", false)
	cfg.ClickHouse.Addr = getEnv("CLICKHOUSE_ADDR", "localhost:9000")
	cfg.ClickHouse.Database = getEnv("CLICKHOUSE_DB", "posture")
	cfg.ClickHouse.Username = getEnv("CLICKHOUSE_USER", "default")
	cfg.ClickHouse.Password = getEnv("CLICKHOUSE_PASS", "")
	cfg.ClickHouse.DialTimeout = 5 * time.Second

	cfg.Classifier.URL = getEnv("CLASSIFIER_URL", "http://localhost:8500")
	cfg.Classifier.Timeout = time.Duration(getEnvInt("CLASSIFIER_TIMEOUT_MS", 5000)) * time.Millisecond
	cfg.Classifier.RetryCount = getEnvInt("CLASSIFIER_RETRY_COUNT", 1)
	cfg.Classifier.MaxConcurrent = int64(getEnvInt("CLASSIFIER_MAX_CONCURRENT", 4))

	cfg.Monitor.HoldThreshold = getEnvFloat("MONITOR_HOLD_THRESHOLD_SEC", 5.0)
	cfg.Monitor.RealertInterval = getEnvFloat("MONITOR_REALERT_INTERVAL_SEC", 5.0)
	cfg.Monitor.DecisionInterval = getEnvFloat("MONITOR_DECISION_INTERVAL_SEC", 1.0)
	cfg.Monitor.FallbackFPS = getEnvFloat("MONITOR_FALLBACK_FPS", 30.0)
	cfg.Monitor.IntervalStep = getEnvInt("MONITOR_INTERVAL_STEP", 10)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}
