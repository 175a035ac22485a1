package cache

import (
	"context"
	"encoding/json"
	"sync"

	"MagicDJ/model"
)

// MemoryStateCache 内存实现，用于测试和无Redis的本地开发。
// 通过JSON往返深拷贝，避免调用方与缓存共享可变状态。
type MemoryStateCache struct {
	mu     sync.Mutex
	state  []byte
	legacy []byte

	// FailSaveState 非nil时 SaveState 返回该错误，测试持久化故障路径用
	FailSaveState error
}

// NewMemoryStateCache 创建空的内存元数据缓存
func NewMemoryStateCache() *MemoryStateCache {
	return &MemoryStateCache{}
}

func (c *MemoryStateCache) LoadState(ctx context.Context) (*model.PersistedState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil, nil
	}
	// 与Redis实现保持一致：以默认值为底逐字段覆盖
	state := model.DefaultState()
	if err := json.Unmarshal(c.state, &state); err != nil {
		return nil, err
	}
	state.EnsureChannels()
	return &state, nil
}

// SetRawState 直接注入持久化记录的原始JSON，测试部分字段缺失的
// 合并行为用（SaveState 序列化完整结构体，字段不可能真正缺失）
func (c *MemoryStateCache) SetRawState(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = data
}

func (c *MemoryStateCache) SaveState(ctx context.Context, state *model.PersistedState) error {
	if c.FailSaveState != nil {
		return c.FailSaveState
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = data
	return nil
}

func (c *MemoryStateCache) LoadLegacy(ctx context.Context) (*model.LegacyState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.legacy == nil {
		return nil, nil
	}
	var state model.LegacyState
	if err := json.Unmarshal(c.legacy, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *MemoryStateCache) SaveLegacy(ctx context.Context, state *model.LegacyState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.legacy = data
	return nil
}

func (c *MemoryStateCache) DeleteLegacy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.legacy = nil
	return nil
}
