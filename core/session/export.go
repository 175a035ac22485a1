package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"MagicDJ/logger"
	"MagicDJ/model"
)

// ExportVersion 音轨配置文件的当前格式版本
const ExportVersion = "1.0"

// ErrValidation 配置文件校验失败。校验在任何状态变更之前完成，
// 导入边界是全有或全无的（与迁移的逐条提交不同）。
var ErrValidation = errors.New("invalid track config file")

// TrackConfigFile 面向用户的音轨配置导入导出格式
type TrackConfigFile struct {
	Version    string                `json:"version"`
	ExportedAt time.Time             `json:"exportedAt"`
	Tracks     []model.PortableTrack `json:"tracks"`
}

// ExportTracks 导出全部音轨为带版本号的配置文件。
// 有本地音频的音轨携带内联base64，导出文件自包含。
func (s *Store) ExportTracks(ctx context.Context) ([]byte, error) {
	tracks := s.Tracks()

	ids := make([]string, 0, len(tracks))
	for _, track := range tracks {
		if track.HasLocalAudio {
			ids = append(ids, track.ID)
		}
	}

	blobs, err := s.audio.GetMultiple(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("读取音频内容失败: %w", err)
	}

	file := TrackConfigFile{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Tracks:     make([]model.PortableTrack, 0, len(tracks)),
	}
	for _, track := range tracks {
		// 临时播放引用不导出
		if !strings.HasPrefix(track.URL, "/static/") {
			track.URL = ""
		}
		portable := model.PortableTrack{Track: track}
		if data, ok := blobs[track.ID]; ok {
			portable.AudioData = base64.StdEncoding.EncodeToString(data)
		}
		file.Tracks = append(file.Tracks, portable)
	}

	return json.MarshalIndent(file, "", "  ")
}

// ImportTracks 导入音轨配置文件，返回导入条数。
// 校验失败返回 ErrValidation 且不做任何状态变更。
// 携带内联音频的音轨在导入时获得会话内临时引用，字节不直接写入
// 二进制存储，而是落到旧版存储层等待下一次迁移检查。
func (s *Store) ImportTracks(ctx context.Context, data []byte) (int, error) {
	var raw struct {
		Version *string         `json:"version"`
		Tracks  json.RawMessage `json:"tracks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if raw.Version == nil || *raw.Version != ExportVersion {
		return 0, fmt.Errorf("%w: unsupported version", ErrValidation)
	}

	var rawTracks []map[string]interface{}
	if raw.Tracks == nil {
		return 0, fmt.Errorf("%w: tracks is not an array", ErrValidation)
	}
	if err := json.Unmarshal(raw.Tracks, &rawTracks); err != nil {
		return 0, fmt.Errorf("%w: tracks is not an array", ErrValidation)
	}
	for i, rawTrack := range rawTracks {
		for _, field := range []string{"id", "name", "type"} {
			value, ok := rawTrack[field].(string)
			if !ok || value == "" {
				return 0, fmt.Errorf("%w: track %d missing string field %q", ErrValidation, i, field)
			}
		}
	}

	var tracks []model.PortableTrack
	if err := json.Unmarshal(raw.Tracks, &tracks); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// 校验全部通过，开始变更
	var inline []model.PortableTrack
	s.mu.Lock()
	for _, portable := range tracks {
		track := portable.Track
		if !strings.HasPrefix(track.URL, "/static/") {
			track.URL = ""
		}
		// 导入的"有本地音频"声明对本机不成立，统一清零；
		// 内联音频走旧版存储层，下次迁移检查自然收编
		track.HasLocalAudio = false
		if portable.AudioData != "" {
			// 旧版层的副本不带临时引用，url一律空串
			stash := model.PortableTrack{Track: track, AudioData: portable.AudioData}
			inline = append(inline, stash)
			track.URL = "data:audio/mpeg;base64," + portable.AudioData
		}
		s.upsertTrackLocked(track)
	}
	s.mu.Unlock()

	if len(inline) > 0 {
		if err := s.stashInlineAudio(ctx, inline); err != nil {
			// 元数据导入已生效，旧版层写入失败只提示不回滚
			logger.Warn("内联音频写入旧版存储层失败", logger.ErrorField(err))
			s.setStorageError(err.Error())
		}
	}

	s.changed()
	logger.Info("音轨配置导入完成",
		logger.Int("imported", len(tracks)),
		logger.Int("withInlineAudio", len(inline)))
	return len(tracks), nil
}

func (s *Store) upsertTrackLocked(track model.Track) {
	if existing := s.findTrackLocked(track.ID); existing != nil {
		*existing = track
		return
	}
	s.state.Tracks = append(s.state.Tracks, track)
}

// stashInlineAudio 把携带内联音频的音轨并入旧版存储层
func (s *Store) stashInlineAudio(ctx context.Context, tracks []model.PortableTrack) error {
	legacy, err := s.states.LoadLegacy(ctx)
	if err != nil {
		return err
	}
	if legacy == nil {
		legacy = &model.LegacyState{}
	}

	for _, track := range tracks {
		replaced := false
		for i := range legacy.Tracks {
			if legacy.Tracks[i].ID == track.ID {
				legacy.Tracks[i] = track
				replaced = true
				break
			}
		}
		if !replaced {
			legacy.Tracks = append(legacy.Tracks, track)
		}
	}

	return s.states.SaveLegacy(ctx, legacy)
}
