package redis

import (
	"context"
	"fmt"
	"time"

	"posture-monitor/common/config"

	"github.com/go-redis/redis/v8"
)

const connectTimeout = 3 * time.Second

// Connect 创建客户端并确认 Redis 可达，失败时关闭客户端
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	return client, nil
}

// Close 关闭连接，允许传入 nil
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
