package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"MagicDJ/cache"
	"MagicDJ/logger"
	"MagicDJ/model"
	"MagicDJ/repository"
	"MagicDJ/storage"

	"github.com/google/uuid"
)

// Snapshot 状态仓库在某一时刻的完整视图，提供给订阅方和API层。
// 切片和map都是拷贝，调用方可以安全持有。
type Snapshot struct {
	model.PersistedState
	Session        *model.SessionRecord `json:"session"`
	ElapsedSeconds int                  `json:"elapsedSeconds"`
	StorageError   string               `json:"storageError"`
}

// Store 会话/音轨状态仓库：音轨元数据与会话记录的唯一所有者。
// 变更方法全部同步完成内存修改（调用方视角下原子、永不失败），
// 持久化是独立的副作用：异步执行，失败写入 storageError 字段，
// 绝不让错误从变更方法里抛出去。
//
// 显式实例，依赖全部从构造函数注入，测试可以创建独立副本。
type Store struct {
	mu             sync.Mutex
	state          model.PersistedState
	session        *model.SessionRecord
	elapsedSeconds int
	storageError   string

	audio  *storage.AudioStore
	states cache.StateCache
	// 以下两个依赖可以为nil：归档和心跳都是尽力而为
	sessions repository.SessionRepository
	live     *cache.LiveSessionCache

	subscribers map[int]func()
	nextSubID   int
}

// New 创建状态仓库，初始为编译期默认状态。恢复持久化数据需调用 Rehydrate。
func New(audio *storage.AudioStore, states cache.StateCache, sessions repository.SessionRepository, live *cache.LiveSessionCache) *Store {
	return &Store{
		state:       model.DefaultState(),
		audio:       audio,
		states:      states,
		sessions:    sessions,
		live:        live,
		subscribers: make(map[int]func()),
	}
}

// Subscribe 注册变更监听，返回退订函数。监听器在每次变更后被调用，
// 自行通过 Snapshot 拉取最新状态。
func (s *Store) Subscribe(listener func()) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Snapshot 返回当前状态的深拷贝
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		PersistedState: copyState(s.state),
		ElapsedSeconds: s.elapsedSeconds,
		StorageError:   s.storageError,
	}
	if s.session != nil {
		record := *s.session
		record.OperationLogs = append(model.OperationLogList{}, s.session.OperationLogs...)
		snap.Session = &record
	}
	return snap
}

func copyState(state model.PersistedState) model.PersistedState {
	out := state
	out.Tracks = append([]model.Track{}, state.Tracks...)
	out.ChannelQueues = make(map[model.ChannelType][]model.QueueItem, len(state.ChannelQueues))
	for ch, items := range state.ChannelQueues {
		out.ChannelQueues[ch] = append([]model.QueueItem{}, items...)
	}
	out.ChannelStates = make(map[model.ChannelType]model.ChannelState, len(state.ChannelStates))
	for ch, cs := range state.ChannelStates {
		out.ChannelStates[ch] = cs
	}
	out.CueList.Items = append([]model.CueItem{}, state.CueList.Items...)
	return out
}

// changed 在变更方法释放锁之后调用：通知订阅方并调度异步持久化
func (s *Store) changed() {
	s.notify()
	s.persistAsync()
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	// 在锁外回调，监听器可以安全地拉取 Snapshot
	for _, fn := range listeners {
		fn()
	}
}

// Persist 把当前元数据写入持久层。与内存变更分离的独立操作，
// 调用方可以等待结果，也可以交给异步路径处理。
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	state := copyState(s.state)
	s.mu.Unlock()

	// 临时播放引用一律不落盘，只有静态资源路径原样保留
	for i := range state.Tracks {
		if !strings.HasPrefix(state.Tracks[i].URL, "/static/") {
			state.Tracks[i].URL = ""
		}
	}

	return s.states.SaveState(ctx, &state)
}

func (s *Store) persistAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Persist(ctx); err != nil {
			logger.Error("元数据持久化失败", logger.ErrorField(err))
			s.setStorageError(err.Error())
		}
	}()
}

func (s *Store) setStorageError(msg string) {
	s.mu.Lock()
	s.storageError = msg
	s.mu.Unlock()
	s.notify()
}

// StorageError 返回最近一次持久层错误，空串表示无错误
func (s *Store) StorageError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storageError
}

// ClearStorageError 清除持久层错误提示（用户关闭横幅后调用）
func (s *Store) ClearStorageError() {
	s.setStorageError("")
}

// ========== 音轨元数据 ==========

// AddTrack 添加音轨元数据，id为空时自动生成。同步完成，立即生效。
func (s *Store) AddTrack(track model.Track) model.Track {
	s.mu.Lock()
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.Volume <= 0 {
		track.Volume = s.state.Settings.DefaultVolume
	}
	s.state.Tracks = append(s.state.Tracks, track)
	s.mu.Unlock()

	s.changed()
	return track
}

// UpdateTrack 按patch部分更新音轨元数据，返回是否命中
func (s *Store) UpdateTrack(trackID string, patch model.TrackPatch) bool {
	s.mu.Lock()
	track := s.findTrackLocked(trackID)
	if track == nil {
		s.mu.Unlock()
		return false
	}
	if patch.Name != nil {
		track.Name = *patch.Name
	}
	if patch.Type != nil {
		track.Type = *patch.Type
	}
	if patch.Volume != nil {
		track.Volume = *patch.Volume
	}
	if patch.Duration != nil {
		track.Duration = *patch.Duration
	}
	if patch.Hotkey != nil {
		track.Hotkey = *patch.Hotkey
	}
	if patch.Loop != nil {
		track.Loop = *patch.Loop
	}
	if patch.TextContent != nil {
		track.TextContent = *patch.TextContent
	}
	s.mu.Unlock()

	s.changed()
	return true
}

// RemoveTrack 删除音轨元数据并在后台清理其二进制内容和播放引用。
// 元数据删除立即生效；二进制删除失败只记日志，不阻塞也不回滚。
func (s *Store) RemoveTrack(trackID string) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.state.Tracks {
		if s.state.Tracks[i].ID == trackID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.state.Tracks = append(s.state.Tracks[:idx], s.state.Tracks[idx+1:]...)
	s.mu.Unlock()

	// 二进制删除与元数据删除不构成事务
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.audio.Delete(ctx, trackID); err != nil {
			logger.Warn("删除音频二进制失败，元数据已删除",
				logger.String("trackId", trackID),
				logger.ErrorField(err))
		}
		s.audio.ReleaseURL(trackID)
	}()

	s.changed()
	return true
}

// SetTrackAudio 保存音轨的音频内容并刷新其播放引用。
// 存储层的类型化错误在此边界转换为 storageError 字段，同时返回给调用方
// 做一次性处理，内存元数据保持未损坏。
func (s *Store) SetTrackAudio(ctx context.Context, trackID string, data []byte, contentType string) error {
	if err := s.audio.Save(ctx, trackID, data, contentType); err != nil {
		s.setStorageError(err.Error())
		return err
	}

	url, err := s.audio.AcquireURL(ctx, trackID)
	if err != nil {
		logger.Warn("签发播放引用失败", logger.String("trackId", trackID), logger.ErrorField(err))
		url = ""
	}

	s.mu.Lock()
	if track := s.findTrackLocked(trackID); track != nil {
		track.HasLocalAudio = true
		track.URL = url
	}
	s.mu.Unlock()

	s.changed()
	return nil
}

// Tracks 返回音轨列表拷贝
func (s *Store) Tracks() []model.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Track{}, s.state.Tracks...)
}

// Track 按id查找音轨
func (s *Store) Track(trackID string) (model.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track := s.findTrackLocked(trackID); track != nil {
		return *track, true
	}
	return model.Track{}, false
}

func (s *Store) findTrackLocked(trackID string) *model.Track {
	for i := range s.state.Tracks {
		if s.state.Tracks[i].ID == trackID {
			return &s.state.Tracks[i]
		}
	}
	return nil
}

// ========== 设置 ==========

// UpdateSettings 浅合并设置的部分更新
func (s *Store) UpdateSettings(patch model.SettingsPatch) {
	s.mu.Lock()
	if patch.AutoPlayNext != nil {
		s.state.Settings.AutoPlayNext = *patch.AutoPlayNext
	}
	if patch.DefaultVolume != nil {
		s.state.Settings.DefaultVolume = *patch.DefaultVolume
	}
	if patch.TTSVoice != nil {
		s.state.Settings.TTSVoice = *patch.TTSVoice
	}
	if patch.CrossfadeMS != nil {
		s.state.Settings.CrossfadeMS = *patch.CrossfadeMS
	}
	s.mu.Unlock()

	s.changed()
}

// SetMasterVolume 设置主音量，范围钳制到 0..1
func (s *Store) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	s.mu.Lock()
	s.state.MasterVolume = volume
	s.mu.Unlock()

	s.changed()
}
