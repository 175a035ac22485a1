package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend 内存驱动，用于测试和无 MinIO 的本地开发
type MemoryBackend struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailPut 非nil时 Put 返回该错误，测试驱动故障路径用
	FailPut error
	// FailList 非nil时 List 返回该错误
	FailList error
}

// NewMemoryBackend 创建空的内存驱动
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

func (b *MemoryBackend) Open(ctx context.Context) error { return nil }

func (b *MemoryBackend) Put(ctx context.Context, trackID string, data []byte, contentType string) error {
	if b.FailPut != nil {
		return b.FailPut
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	b.objects[trackID] = buf
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, trackID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[trackID]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (b *MemoryBackend) Stat(ctx context.Context, trackID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[trackID]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(data)), nil
}

func (b *MemoryBackend) Remove(ctx context.Context, trackID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, trackID)
	return nil
}

func (b *MemoryBackend) List(ctx context.Context) (map[string]int64, error) {
	if b.FailList != nil {
		return nil, b.FailList
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sizes := make(map[string]int64, len(b.objects))
	for id, data := range b.objects {
		sizes[id] = int64(len(data))
	}
	return sizes, nil
}

func (b *MemoryBackend) PresignURL(ctx context.Context, trackID string, expiry time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[trackID]; !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("mem://audio/%s?expires=%d", trackID, time.Now().Add(expiry).Unix()), nil
}
