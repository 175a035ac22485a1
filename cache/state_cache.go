package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"MagicDJ/model"

	"github.com/go-redis/redis/v8"
)

// 持久化键按格式版本划分命名空间。v1 为旧版格式（音频内联base64），
// 只由迁移引擎读写；v2 为当前格式，只存元数据。
const (
	StateKeyV1 = "magicdj:state:v1"
	StateKeyV2 = "magicdj:state:v2"
)

// StateCache 会话元数据的持久化边界。
type StateCache interface {
	// LoadState 读取当前格式的元数据，不存在返回 (nil, nil)。
	// 实现必须以编译期默认值为底逐字段覆盖：持久化记录里缺失的
	// 新增字段拿到默认值，而不是零值。
	LoadState(ctx context.Context) (*model.PersistedState, error)
	// SaveState 整体写入当前格式的元数据
	SaveState(ctx context.Context, state *model.PersistedState) error
	// LoadLegacy 读取旧版格式，不存在返回 (nil, nil)
	LoadLegacy(ctx context.Context) (*model.LegacyState, error)
	// SaveLegacy 整体写回旧版格式（迁移引擎逐条提交用）
	SaveLegacy(ctx context.Context, state *model.LegacyState) error
	// DeleteLegacy 删除旧版格式条目，迁移全部完成后调用
	DeleteLegacy(ctx context.Context) error
}

// RedisStateCache 基于Redis的元数据持久化实现
type RedisStateCache struct {
	client *redis.Client
}

// NewRedisStateCache 创建Redis元数据缓存
func NewRedisStateCache(client *redis.Client) *RedisStateCache {
	return &RedisStateCache{client: client}
}

// LoadState 读取当前格式的元数据
func (c *RedisStateCache) LoadState(ctx context.Context) (*model.PersistedState, error) {
	data, err := c.client.Get(ctx, StateKeyV2).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load persisted state: %w", err)
	}

	// 以默认值为底反序列化：缺失字段保留默认值，实现逐字段合并
	state := model.DefaultState()
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal persisted state: %w", err)
	}
	state.EnsureChannels()
	return &state, nil
}

// SaveState 整体写入当前格式的元数据
func (c *RedisStateCache) SaveState(ctx context.Context, state *model.PersistedState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal persisted state: %w", err)
	}

	if err := c.client.Set(ctx, StateKeyV2, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save persisted state: %w", err)
	}
	return nil
}

// LoadLegacy 读取旧版格式
func (c *RedisStateCache) LoadLegacy(ctx context.Context) (*model.LegacyState, error) {
	data, err := c.client.Get(ctx, StateKeyV1).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load legacy state: %w", err)
	}

	var state model.LegacyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal legacy state: %w", err)
	}
	return &state, nil
}

// SaveLegacy 整体写回旧版格式
func (c *RedisStateCache) SaveLegacy(ctx context.Context, state *model.LegacyState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal legacy state: %w", err)
	}

	if err := c.client.Set(ctx, StateKeyV1, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save legacy state: %w", err)
	}
	return nil
}

// DeleteLegacy 删除旧版格式条目
func (c *RedisStateCache) DeleteLegacy(ctx context.Context) error {
	if err := c.client.Del(ctx, StateKeyV1).Err(); err != nil {
		return fmt.Errorf("failed to delete legacy state: %w", err)
	}
	return nil
}
