package config

import (
	"fmt"
	"net/url"
	"time"
)

// DatabaseConfig 告警库（PostgreSQL）连接参数
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig 告警流与最新体位缓存共用的 Redis 连接参数
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig 告警推送 broker 参数
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// ClickHouseConfig ClickHouse 配置（体位时间线）
type ClickHouseConfig struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// GetDSN lib/pq 连接串；口令经过 URL 编码，允许包含空格与引号
func (c *DatabaseConfig) GetDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted 日志用的连接描述，不含口令
func (c *DatabaseConfig) Redacted() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}
