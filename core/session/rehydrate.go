package session

import (
	"context"
	"errors"

	"MagicDJ/logger"
	"MagicDJ/model"
	"MagicDJ/storage"
)

// Rehydrate 从持久层恢复元数据并重新签发播放引用。
// 持久化记录缺失的字段由缓存层以默认值补齐（逐字段合并）。
// 声称有本地音频但二进制缺失的"幽灵音轨"在这里统一降级，
// 不允许带着不一致状态进入会话。
func (s *Store) Rehydrate(ctx context.Context) error {
	persisted, err := s.states.LoadState(ctx)
	if err != nil {
		s.setStorageError(err.Error())
		return err
	}

	if persisted != nil {
		s.mu.Lock()
		s.state = *persisted
		s.state.EnsureChannels()
		s.mu.Unlock()
	}

	s.restoreAudioRefs(ctx)
	s.changed()
	return nil
}

// restoreAudioRefs 为每个 hasLocalAudio 的音轨重新签发播放引用，
// 二进制缺失的降级为幽灵音轨（hasLocalAudio=false, url=""）
func (s *Store) restoreAudioRefs(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.state.Tracks))
	for i := range s.state.Tracks {
		if s.state.Tracks[i].HasLocalAudio {
			ids = append(ids, s.state.Tracks[i].ID)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		url, err := s.audio.AcquireURL(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				logger.Warn("音轨声称有本地音频但二进制缺失，降级为幽灵音轨",
					logger.String("trackId", id))
				s.mu.Lock()
				if track := s.findTrackLocked(id); track != nil {
					track.HasLocalAudio = false
					track.URL = ""
				}
				s.mu.Unlock()
				continue
			}
			// 驱动故障不降级：二进制可能还在，等存储恢复后重试
			logger.Warn("恢复播放引用失败", logger.String("trackId", id), logger.ErrorField(err))
			s.setStorageError(err.Error())
			continue
		}

		s.mu.Lock()
		if track := s.findTrackLocked(id); track != nil {
			track.URL = url
		}
		s.mu.Unlock()
	}
}

// MarkTrackMigrated 迁移引擎搬完一条音轨后调用：刷新迁移标记与播放引用。
// 旧版独有（当前元数据里没有）的音轨在这里补进来，
// 迁移完成的音轨必然出现在当前层，不会只剩一份二进制。
func (s *Store) MarkTrackMigrated(ctx context.Context, migrated model.Track) {
	url, err := s.audio.AcquireURL(ctx, migrated.ID)
	if err != nil {
		logger.Warn("为迁移完成的音轨签发播放引用失败",
			logger.String("trackId", migrated.ID),
			logger.ErrorField(err))
		url = ""
	}

	s.mu.Lock()
	track := s.findTrackLocked(migrated.ID)
	if track == nil {
		migrated.HasLocalAudio = true
		migrated.URL = url
		s.state.Tracks = append(s.state.Tracks, migrated)
	} else {
		track.HasLocalAudio = true
		track.URL = url
	}
	s.mu.Unlock()

	s.changed()
}
