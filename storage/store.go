package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MagicDJ/config"
	"MagicDJ/logger"
	"MagicDJ/model"
)

// Options 音频存储的可调参数。阈值与防抖窗口一样属于契约的一部分，
// 默认值按原调优结果保留，可通过配置覆盖。
type Options struct {
	// TotalBytes 配额容量上限，<=0 表示无法确定容量（percentage恒为0）
	TotalBytes int64
	// 告警阈值，按百分比划分 normal/warning/danger/critical
	WarnPercent     float64
	DangerPercent   float64
	CriticalPercent float64
	// LeaseTTL 临时播放引用的有效期
	LeaseTTL time.Duration
	// Init 重试参数：基础间隔按尝试次数倍增
	InitRetries int
	InitBackoff time.Duration
}

// OptionsFromConfig 从应用配置构造存储参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TotalBytes:      cfg.QuotaTotalBytes,
		WarnPercent:     cfg.QuotaWarnPercent,
		DangerPercent:   cfg.QuotaDangerPercent,
		CriticalPercent: cfg.QuotaCriticalPercent,
		LeaseTTL:        time.Duration(cfg.LeaseTTLSeconds) * time.Second,
		InitRetries:     2,
		InitBackoff:     time.Second,
	}
}

// AudioStore 音频二进制持久化存储。独占管理音频字节与临时播放引用：
// 引用的签发/回收集中在本层，保存、删除、重新初始化都会回收同id的旧引用，
// 调用方不可能漏掉配对的释放。
type AudioStore struct {
	backend Backend
	opts    Options

	mu     sync.Mutex
	inited bool
	// 单一所有者的引用表：音轨id -> 当前有效的播放引用
	leases map[string]string
}

// NewAudioStore 创建音频存储。Init 前其余操作一律失败。
func NewAudioStore(backend Backend, opts Options) *AudioStore {
	if opts.WarnPercent <= 0 {
		opts.WarnPercent = 70
	}
	if opts.DangerPercent <= 0 {
		opts.DangerPercent = 85
	}
	if opts.CriticalPercent <= 0 {
		opts.CriticalPercent = 95
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 24 * time.Hour
	}
	if opts.InitBackoff <= 0 {
		opts.InitBackoff = time.Second
	}
	return &AudioStore{
		backend: backend,
		opts:    opts,
		leases:  make(map[string]string),
	}
}

// Init 打开二进制存储，幂等。底层打开失败时按指数退避重试
// （基础间隔乘以尝试序号），耗尽重试后返回 ErrStorageUnavailable。
// 重新初始化成功会回收所有已签发的播放引用。
func (s *AudioStore) Init(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= s.opts.InitRetries; attempt++ {
		if attempt > 0 {
			// 第n次重试前等待 backoff*n
			select {
			case <-time.After(s.opts.InitBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
			}
		}

		if err := s.backend.Open(ctx); err != nil {
			lastErr = err
			logger.Warn("打开音频存储失败，准备重试",
				logger.Int("attempt", attempt+1),
				logger.ErrorField(err))
			continue
		}

		s.mu.Lock()
		wasInited := s.inited
		s.inited = true
		if wasInited {
			// 重新初始化使旧引用全部失效
			s.leases = make(map[string]string)
		}
		s.mu.Unlock()
		return nil
	}

	return fmt.Errorf("%w: %v", ErrStorageUnavailable, lastErr)
}

func (s *AudioStore) ensureInited() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return ErrStorageUnavailable
	}
	return nil
}

// Save 写入或覆盖音轨的音频内容。超出剩余配额返回 *QuotaExceededError，
// 其它驱动失败包装为 ErrWrite（不在本层重试，是否重试由调用方决定）。
// 成功后旧的播放引用随即失效。
func (s *AudioStore) Save(ctx context.Context, trackID string, data []byte, contentType string) error {
	if err := s.ensureInited(); err != nil {
		return err
	}

	needed := int64(len(data))
	if s.opts.TotalBytes > 0 {
		quota := s.GetQuota(ctx)
		remaining := s.opts.TotalBytes - quota.Used
		// 覆盖写会先释放旧条目占用的空间
		if existing, err := s.backend.Stat(ctx, trackID); err == nil {
			remaining += existing
		}
		if needed > remaining {
			return &QuotaExceededError{Needed: needed, Remaining: remaining}
		}
	}

	if err := s.backend.Put(ctx, trackID, data, contentType); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	// 旧引用指向被覆盖前的内容，立即回收
	s.mu.Lock()
	delete(s.leases, trackID)
	s.mu.Unlock()

	logger.Debug("音频内容已保存",
		logger.String("trackId", trackID),
		logger.Int64("size", needed))
	return nil
}

// Get 读取音轨的音频内容。缺失不是错误，返回 (nil, nil)。
func (s *AudioStore) Get(ctx context.Context, trackID string) ([]byte, error) {
	if err := s.ensureInited(); err != nil {
		return nil, err
	}

	data, err := s.backend.Get(ctx, trackID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return data, nil
}

// GetMultiple 批量读取，只返回能解析到的id，缺失的id不出现在结果里
func (s *AudioStore) GetMultiple(ctx context.Context, trackIDs []string) (map[string][]byte, error) {
	if err := s.ensureInited(); err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(trackIDs))
	for _, id := range trackIDs {
		data, err := s.backend.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRead, err)
		}
		result[id] = data
	}
	return result, nil
}

// Delete 删除音轨的音频内容，幂等。同时回收其播放引用。
func (s *AudioStore) Delete(ctx context.Context, trackID string) error {
	if err := s.ensureInited(); err != nil {
		return err
	}

	if err := s.backend.Remove(ctx, trackID); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.mu.Lock()
	delete(s.leases, trackID)
	s.mu.Unlock()
	return nil
}

// GetQuota 计算当前配额状态。本方法不失败：底层查询出错时
// 返回 Total=0 的空配额，让调用方优雅降级。
func (s *AudioStore) GetQuota(ctx context.Context) model.StorageQuota {
	sizes, err := s.backend.List(ctx)
	if err != nil {
		logger.Warn("查询存储用量失败，返回空配额", logger.ErrorField(err))
		return model.StorageQuota{}
	}

	var used int64
	for _, size := range sizes {
		used += size
	}

	quota := model.StorageQuota{Used: used, Total: s.opts.TotalBytes}
	if quota.Total > 0 {
		quota.Percentage = float64(used) / float64(quota.Total) * 100
	}
	return quota
}

// WarningLevel 按使用率百分比分级，阈值属于契约：
// <warn 正常，<danger 警告，<critical 危险，其余临界
func (s *AudioStore) WarningLevel(percentage float64) model.WarningLevel {
	switch {
	case percentage < s.opts.WarnPercent:
		return model.WarningLevelNormal
	case percentage < s.opts.DangerPercent:
		return model.WarningLevelWarning
	case percentage < s.opts.CriticalPercent:
		return model.WarningLevelDanger
	default:
		return model.WarningLevelCritical
	}
}

// AcquireURL 为音轨签发临时播放引用并登记到引用表，
// 同id的旧引用被新引用取代。对象缺失返回 ErrNotFound。
func (s *AudioStore) AcquireURL(ctx context.Context, trackID string) (string, error) {
	if err := s.ensureInited(); err != nil {
		return "", err
	}

	if _, err := s.backend.Stat(ctx, trackID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRead, err)
	}

	url, err := s.backend.PresignURL(ctx, trackID, s.opts.LeaseTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRead, err)
	}

	s.mu.Lock()
	s.leases[trackID] = url
	s.mu.Unlock()
	return url, nil
}

// ReleaseURL 回收音轨的播放引用，对未登记的id是空操作
func (s *AudioStore) ReleaseURL(trackID string) {
	s.mu.Lock()
	delete(s.leases, trackID)
	s.mu.Unlock()
}

// Lease 返回音轨当前登记的播放引用
func (s *AudioStore) Lease(trackID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.leases[trackID]
	return url, ok
}

// LeaseCount 当前登记的引用数量
func (s *AudioStore) LeaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leases)
}
