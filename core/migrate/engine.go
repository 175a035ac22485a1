package migrate

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"MagicDJ/cache"
	"MagicDJ/logger"
	"MagicDJ/model"
	"MagicDJ/storage"
)

// Status 迁移引擎状态机：idle → migrating → {success, partial-success, all-failed}。
// partial-success 和 all-failed 可重入（用户可重试），success 之后不再自动触发。
type Status string

const (
	StatusIdle      Status = "idle"
	StatusMigrating Status = "migrating"
	StatusSuccess   Status = "success"
	StatusPartial   Status = "partial-success"
	StatusFailed    Status = "all-failed"
)

// Engine 旧版存储迁移引擎。把旧版（v1）条目里内联的base64音频
// 解码后搬进二进制存储，逐条提交：单条失败不中断批次，
// 已迁移的条目重跑时直接跳过。
type Engine struct {
	states cache.StateCache
	audio  *storage.AudioStore

	// 每迁移成功一条回调一次，由上层同步音轨元数据。
	// 回调携带完整音轨，旧版独有的条目也能补进当前元数据层。
	onTrackMigrated func(track model.Track)

	mu     sync.Mutex
	status Status
}

// New 创建迁移引擎
func New(states cache.StateCache, audio *storage.AudioStore) *Engine {
	return &Engine{
		states: states,
		audio:  audio,
		status: StatusIdle,
	}
}

// SetOnTrackMigrated 注册单条迁移成功的回调
func (e *Engine) SetOnTrackMigrated(fn func(track model.Track)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrackMigrated = fn
}

// Status 返回当前状态机状态
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// PendingCount 统计尚未迁移的条目数。纯查询，无副作用，
// 每次加载时调用都足够便宜。
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	legacy, err := e.states.LoadLegacy(ctx)
	if err != nil {
		return 0, err
	}
	if legacy == nil {
		return 0, nil
	}

	count := 0
	for _, track := range legacy.Tracks {
		if track.AudioData != "" {
			count++
		}
	}
	return count, nil
}

// Migrate 执行一次迁移批次，返回批次结果。部分成功是合法结果：
// 成功的条目已经提交，失败的逐条累积在 Errors 里。
func (e *Engine) Migrate(ctx context.Context) (*model.MigrationResult, error) {
	e.mu.Lock()
	if e.status == StatusMigrating {
		e.mu.Unlock()
		return nil, fmt.Errorf("migration already in progress")
	}
	e.status = StatusMigrating
	notify := e.onTrackMigrated
	e.mu.Unlock()

	result, err := e.run(ctx, notify)

	e.mu.Lock()
	switch {
	case err != nil:
		e.status = StatusFailed
	case len(result.Errors) == 0:
		e.status = StatusSuccess
	case result.MigratedCount > 0:
		e.status = StatusPartial
	default:
		e.status = StatusFailed
	}
	e.mu.Unlock()

	return result, err
}

func (e *Engine) run(ctx context.Context, notify func(track model.Track)) (*model.MigrationResult, error) {
	result := &model.MigrationResult{Errors: []model.MigrationError{}}

	legacy, err := e.states.LoadLegacy(ctx)
	if err != nil {
		return result, fmt.Errorf("读取旧版存储失败: %w", err)
	}
	if legacy == nil {
		return result, nil
	}

	for i := range legacy.Tracks {
		track := &legacy.Tracks[i]
		// 已迁移的条目不再解码，保证重跑安全
		if track.AudioData == "" {
			continue
		}

		data, decodeErr := base64.StdEncoding.DecodeString(track.AudioData)
		if decodeErr != nil {
			result.Errors = append(result.Errors, model.MigrationError{
				TrackID: track.ID,
				Error:   fmt.Sprintf("decode audio payload: %v", decodeErr),
			})
			logger.Warn("旧版音频数据解码失败",
				logger.String("trackId", track.ID),
				logger.ErrorField(decodeErr))
			continue
		}

		if saveErr := e.audio.Save(ctx, track.ID, data, "audio/mpeg"); saveErr != nil {
			result.Errors = append(result.Errors, model.MigrationError{
				TrackID: track.ID,
				Error:   saveErr.Error(),
			})
			logger.Warn("迁移写入二进制存储失败",
				logger.String("trackId", track.ID),
				logger.ErrorField(saveErr))
			continue
		}

		// 单条提交：清掉内联数据并立即写回，中途失败也能从断点续跑
		track.AudioData = ""
		track.HasLocalAudio = true
		result.MigratedCount++
		result.TotalSizeBytes += int64(len(data))

		if saveErr := e.states.SaveLegacy(ctx, legacy); saveErr != nil {
			// 音频已落库，下次重跑会覆盖写同一id，最终一致
			logger.Warn("写回旧版存储失败，断点续跑时将重新迁移该条目",
				logger.String("trackId", track.ID),
				logger.ErrorField(saveErr))
		}

		if notify != nil {
			notify(track.Track)
		}
	}

	logger.Info("迁移批次完成",
		logger.Int("migrated", result.MigratedCount),
		logger.Int64("totalBytes", result.TotalSizeBytes),
		logger.Int("failed", len(result.Errors)))
	return result, nil
}
