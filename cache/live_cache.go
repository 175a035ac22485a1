package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MagicDJ/config"

	"github.com/redis/go-redis/v9"
)

// 实时会话状态键与过期时间。状态带TTL，服务崩溃后自动消失。
const (
	liveSessionKey = "magicdj:live:session"
	liveSessionTTL = 30 * time.Second
)

// LiveStatus 供外部面板读取的当前会话心跳
type LiveStatus struct {
	SessionID          string    `json:"sessionId"`
	StartTime          time.Time `json:"startTime"`
	OperationCount     int       `json:"operationCount"`
	ModeSwitchCount    int       `json:"modeSwitchCount"`
	AIInteractionCount int       `json:"aiInteractionCount"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// LiveSessionCache 实时会话状态缓存，使用独立的Redis DB
type LiveSessionCache struct {
	client *redis.Client
}

// NewLiveSessionCache 创建并连接实时会话缓存
func NewLiveSessionCache(cfg *config.Config) (*LiveSessionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.LiveRedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to live session Redis: %w", err)
	}

	return &LiveSessionCache{client: client}, nil
}

// Publish 写入当前会话心跳
func (c *LiveSessionCache) Publish(ctx context.Context, status *LiveStatus) error {
	status.UpdatedAt = time.Now()
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal live status: %w", err)
	}

	if err := c.client.Set(ctx, liveSessionKey, data, liveSessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to publish live status: %w", err)
	}
	return nil
}

// Get 读取当前会话心跳，不存在返回 (nil, nil)
func (c *LiveSessionCache) Get(ctx context.Context) (*LiveStatus, error) {
	data, err := c.client.Get(ctx, liveSessionKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get live status: %w", err)
	}

	var status LiveStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live status: %w", err)
	}
	return &status, nil
}

// Clear 清除会话心跳（会话结束时调用）
func (c *LiveSessionCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, liveSessionKey).Err(); err != nil {
		return fmt.Errorf("failed to clear live status: %w", err)
	}
	return nil
}

// Close 关闭实时会话缓存连接
func (c *LiveSessionCache) Close() error {
	return c.client.Close()
}
