package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel 是任务事件的默认发布频道。
const DefaultRedisChannel = "openagents:task-events"

// RedisConfig 描述 Redis Sink 的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// RedisSink 通过 PUBLISH 将事件发布到 Redis 频道。
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink 连接 Redis 并创建 Sink。
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisSink{client: client, channel: channel}, nil
}

// Name 返回 redis。
func (s *RedisSink) Name() string { return "redis" }

// Channel 返回发布频道。
func (s *RedisSink) Channel() string { return s.channel }

// Publish 将事件编码为 JSON 后发布。
func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ Sink = (*RedisSink)(nil)
