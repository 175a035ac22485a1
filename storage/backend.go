package storage

import (
	"context"
	"time"
)

// Backend 音频二进制对象的底层驱动。键为音轨id，单一共享键空间，
// 同一id最后写入者胜出。
type Backend interface {
	// Open 建立连接并确保存储空间就绪，可重复调用
	Open(ctx context.Context) error
	// Put 写入或覆盖对象
	Put(ctx context.Context, trackID string, data []byte, contentType string) error
	// Get 读取对象内容，缺失返回 ErrNotFound
	Get(ctx context.Context, trackID string) ([]byte, error)
	// Stat 返回对象大小，缺失返回 ErrNotFound
	Stat(ctx context.Context, trackID string) (int64, error)
	// Remove 删除对象，对不存在的id不报错
	Remove(ctx context.Context, trackID string) error
	// List 返回全部对象的 id -> 字节数
	List(ctx context.Context) (map[string]int64, error)
	// PresignURL 为对象签发限时可播放引用
	PresignURL(ctx context.Context, trackID string, expiry time.Duration) (string, error)
}
