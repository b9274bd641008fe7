package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, int64(500), cfg.HTTP.MaxUploadMB)
	assert.NotEmpty(t, cfg.HTTP.TempDir)

	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "posture", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "posture:alerts", cfg.Redis.AlertStream)
	assert.Equal(t, "posture:patient:", cfg.Redis.PositionKeyPrefix)
	assert.Equal(t, 60*time.Second, cfg.Redis.PositionTTL)

	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "posture/alerts/{patient_id}", cfg.MQTT.AlertTopic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.False(t, cfg.ClickHouse.Enabled)
	assert.Equal(t, "localhost:9000", cfg.ClickHouse.Addr)

	assert.Equal(t, "http://localhost:8500", cfg.Classifier.URL)
	assert.Equal(t, 5*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, int64(4), cfg.Classifier.MaxConcurrent)

	assert.Equal(t, 5.0, cfg.Monitor.HoldThreshold)
	assert.Equal(t, 5.0, cfg.Monitor.RealertInterval)
	assert.Equal(t, 1.0, cfg.Monitor.DecisionInterval)
	assert.Equal(t, 30.0, cfg.Monitor.FallbackFPS)
	assert.Equal(t, 10, cfg.Monitor.IntervalStep)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "test-redis:6380")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("CLASSIFIER_URL", "http://inference:9000")
	t.Setenv("CLASSIFIER_MAX_CONCURRENT", "2")
	t.Setenv("MONITOR_HOLD_THRESHOLD_SEC", "7.5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, "http://inference:9000", cfg.Classifier.URL)
	assert.Equal(t, int64(2), cfg.Classifier.MaxConcurrent)
	assert.Equal(t, 7.5, cfg.Monitor.HoldThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_FLOAT", "-1")
	t.Setenv("TEST_BOOL", "yes-please")

	assert.Equal(t, "default-value", getEnv("TEST_MISSING", "default-value"))
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	// 非正数回退到默认值
	assert.Equal(t, 30.0, getEnvFloat("TEST_FLOAT", 30.0))
	assert.True(t, getEnvBool("TEST_BOOL", true))
}

func TestGetEnvFloat_RejectsNonFinite(t *testing.T) {
	for _, raw := range []string{"NaN", "nan", "Inf", "+Inf", "-Inf", "infinity"} {
		t.Setenv("TEST_FLOAT", raw)
		assert.Equal(t, 5.0, getEnvFloat("TEST_FLOAT", 5.0), "value %q", raw)
	}
}

func TestLoad_NonFiniteMonitorPolicyFallsBack(t *testing.T) {
	t.Setenv("MONITOR_HOLD_THRESHOLD_SEC", "NaN")
	t.Setenv("MONITOR_REALERT_INTERVAL_SEC", "Inf")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Monitor.HoldThreshold)
	assert.Equal(t, 5.0, cfg.Monitor.RealertInterval)
}
