package storage

import (
	"errors"
	"fmt"
)

// 存储层错误分类。上层（会话状态仓库）在边界处捕获并转换为
// storageError 状态字段，不允许向UI层抛出。
var (
	// ErrStorageUnavailable 二进制存储无法打开（本次会话音频持久化降级）
	ErrStorageUnavailable = errors.New("binary store unavailable")

	// ErrWrite 驱动写入失败，init层之外不做隐藏重试，由调用方决定
	ErrWrite = errors.New("binary store write failed")

	// ErrRead 驱动读取失败
	ErrRead = errors.New("binary store read failed")

	// ErrNotFound 对象不存在。注意 Get 对缺失返回 (nil, nil)，
	// 只有 AcquireURL 等必须区分缺失的路径才使用该错误。
	ErrNotFound = errors.New("audio object not found")
)

// QuotaExceededError 保存将超出剩余配额。可由用户删除音轨后恢复，不允许静默丢弃。
type QuotaExceededError struct {
	Needed    int64
	Remaining int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: need %d bytes, %d remaining", e.Needed, e.Remaining)
}
