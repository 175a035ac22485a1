package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"MagicDJ/cache"
	"MagicDJ/core/session"
	"MagicDJ/model"
	"MagicDJ/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*session.Store, *cache.MemoryStateCache, *storage.AudioStore) {
	t.Helper()
	states := cache.NewMemoryStateCache()
	audio := storage.NewAudioStore(storage.NewMemoryBackend(), storage.Options{
		TotalBytes:  1 << 20,
		InitBackoff: time.Millisecond,
	})
	require.NoError(t, audio.Init(context.Background()))
	return session.New(audio, states, nil, nil), states, audio
}

func TestAddUpdateRemoveTrack(t *testing.T) {
	store, _, _ := newTestStore(t)

	track := store.AddTrack(model.Track{
		Name:   "开场音乐",
		Type:   model.TrackTypeIntro,
		Source: model.TrackSourceTTS,
	})
	require.NotEmpty(t, track.ID)
	// 未指定音量时落到设置里的默认音量
	assert.InDelta(t, 0.8, track.Volume, 0.001)

	newName := "新开场"
	newVolume := 0.5
	require.True(t, store.UpdateTrack(track.ID, model.TrackPatch{
		Name:   &newName,
		Volume: &newVolume,
	}))

	got, ok := store.Track(track.ID)
	require.True(t, ok)
	assert.Equal(t, "新开场", got.Name)
	assert.InDelta(t, 0.5, got.Volume, 0.001)
	// 未出现在patch里的字段保持原值
	assert.Equal(t, model.TrackTypeIntro, got.Type)

	require.True(t, store.RemoveTrack(track.ID))
	_, ok = store.Track(track.ID)
	assert.False(t, ok)
	assert.False(t, store.RemoveTrack(track.ID))
}

// 场景测试：开会话 → 3条音轨（2条tts、1条上传）→ 保存上传音轨的音频
// → 配额增长 → 删除上传音轨 → 二进制随之清理、配额回落
func TestUploadTrackLifecycle(t *testing.T) {
	store, _, audio := newTestStore(t)
	ctx := context.Background()

	store.StartSession()
	store.AddTrack(model.Track{Name: "tts-1", Type: model.TrackTypeIntro, Source: model.TrackSourceTTS})
	store.AddTrack(model.Track{Name: "tts-2", Type: model.TrackTypeFiller, Source: model.TrackSourceTTS})
	upload := store.AddTrack(model.Track{Name: "上传曲目", Type: model.TrackTypeSong, Source: model.TrackSourceUpload})

	require.NoError(t, store.SetTrackAudio(ctx, upload.ID, []byte("uploaded-bytes"), "audio/mpeg"))
	assert.Greater(t, audio.GetQuota(ctx).Used, int64(0))

	got, ok := store.Track(upload.ID)
	require.True(t, ok)
	assert.True(t, got.HasLocalAudio)
	assert.NotEmpty(t, got.URL)

	require.True(t, store.RemoveTrack(upload.ID))

	// 二进制删除在后台进行
	assert.Eventually(t, func() bool {
		data, err := audio.Get(ctx, upload.ID)
		return err == nil && data == nil
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return audio.GetQuota(ctx).Used == 0
	}, time.Second, 10*time.Millisecond)
}

// 幽灵音轨降级：元数据声称有本地音频但二进制缺失，
// 恢复后 hasLocalAudio=false 且 url 为空
func TestRehydrateDemotesGhostTracks(t *testing.T) {
	store, states, audio := newTestStore(t)
	ctx := context.Background()

	healthy := store.AddTrack(model.Track{Name: "ok", Type: model.TrackTypeSong, Source: model.TrackSourceUpload})
	require.NoError(t, store.SetTrackAudio(ctx, healthy.ID, []byte("bytes"), ""))

	ghost := store.AddTrack(model.Track{
		Name: "ghost", Type: model.TrackTypeSong, Source: model.TrackSourceUpload,
		HasLocalAudio: true,
	})

	require.NoError(t, store.Persist(ctx))

	restored := session.New(audio, states, nil, nil)
	require.NoError(t, restored.Rehydrate(ctx))

	gotGhost, ok := restored.Track(ghost.ID)
	require.True(t, ok)
	assert.False(t, gotGhost.HasLocalAudio)
	assert.Empty(t, gotGhost.URL)

	gotHealthy, ok := restored.Track(healthy.ID)
	require.True(t, ok)
	assert.True(t, gotHealthy.HasLocalAudio)
	assert.NotEmpty(t, gotHealthy.URL)
}

// 恢复时持久化记录缺失的字段拿到编译期默认值
func TestRehydrateMergesDefaults(t *testing.T) {
	_, states, audio := newTestStore(t)
	ctx := context.Background()

	// 直接注入原始JSON：缺失的字段在记录里真正不存在，
	// 而不是序列化完整结构体产生的零值
	states.SetRawState([]byte(`{"version":"v2","masterVolume":0.3}`))

	restored := session.New(audio, states, nil, nil)
	require.NoError(t, restored.Rehydrate(ctx))

	snap := restored.Snapshot()
	assert.InDelta(t, 0.3, snap.MasterVolume, 0.001)
	// 记录里缺失的设置字段是默认值而不是零值
	assert.InDelta(t, 0.8, snap.Settings.DefaultVolume, 0.001)
	assert.Equal(t, -1, snap.CueList.CurrentPosition)
	// 通道枚举穷尽补全
	for _, ch := range model.AllChannelTypes {
		assert.Contains(t, snap.ChannelQueues, ch)
		assert.Contains(t, snap.ChannelStates, ch)
	}
}

// 持久化失败进 storageError 字段，内存变更不受影响
func TestPersistFailureSurfacesAsStorageError(t *testing.T) {
	store, states, _ := newTestStore(t)
	states.FailSaveState = errors.New("redis: connection refused")

	track := store.AddTrack(model.Track{Name: "仍然生效", Type: model.TrackTypeSong, Source: model.TrackSourceTTS})

	_, ok := store.Track(track.ID)
	assert.True(t, ok)
	assert.Eventually(t, func() bool {
		return store.StorageError() != ""
	}, time.Second, 10*time.Millisecond)

	store.ClearStorageError()
	assert.Empty(t, store.StorageError())
}

// url 永不落盘（静态资源路径除外）
func TestPersistStripsEphemeralURLs(t *testing.T) {
	store, states, _ := newTestStore(t)
	ctx := context.Background()

	withURL := store.AddTrack(model.Track{
		Name: "leased", Type: model.TrackTypeSong, Source: model.TrackSourceUpload,
	})
	require.NoError(t, store.SetTrackAudio(ctx, withURL.ID, []byte("b"), ""))
	static := store.AddTrack(model.Track{
		Name: "bundled", Type: model.TrackTypeEffect, Source: model.TrackSourceUpload,
		URL: "/static/sfx/airhorn.mp3",
	})

	require.NoError(t, store.Persist(ctx))

	persisted, err := states.LoadState(ctx)
	require.NoError(t, err)
	for _, track := range persisted.Tracks {
		switch track.ID {
		case withURL.ID:
			assert.Empty(t, track.URL)
		case static.ID:
			assert.Equal(t, "/static/sfx/airhorn.mp3", track.URL)
		}
	}
}

func TestSubscribeNotifiesOnMutation(t *testing.T) {
	store, _, _ := newTestStore(t)

	notified := 0
	unsubscribe := store.Subscribe(func() { notified++ })

	store.SetMasterVolume(0.5)
	assert.Equal(t, 1, notified)

	unsubscribe()
	store.SetMasterVolume(0.6)
	assert.Equal(t, 1, notified)
}

func TestSettingsShallowMerge(t *testing.T) {
	store, _, _ := newTestStore(t)

	voice := "en-US-JennyNeural"
	store.UpdateSettings(model.SettingsPatch{TTSVoice: &voice})

	snap := store.Snapshot()
	assert.Equal(t, "en-US-JennyNeural", snap.Settings.TTSVoice)
	// 其余设置保持不变
	assert.True(t, snap.Settings.AutoPlayNext)
	assert.Equal(t, 400, snap.Settings.CrossfadeMS)
}

func TestSessionTimer(t *testing.T) {
	store, _, _ := newTestStore(t)

	record := store.StartSession()
	require.NotNil(t, record)
	assert.Nil(t, record.EndTime)

	// 同一时刻至多一条进行中的会话
	again := store.StartSession()
	assert.Equal(t, record.ID, again.ID)

	// 经过时间按墙钟重算
	elapsed := store.TickSession(record.StartTime.Add(42 * time.Second))
	assert.Equal(t, 42, elapsed)

	store.LogOperation(model.OpInterrupt, "")
	store.LogOperation(model.OpPlayback, "t1")
	store.LogModeSwitch()

	closed := store.StopSession()
	require.NotNil(t, closed)
	require.NotNil(t, closed.EndTime)
	assert.Len(t, closed.OperationLogs, 2)
	assert.Equal(t, 1, closed.AIInteractionCount)
	assert.Equal(t, 1, closed.ModeSwitchCount)

	assert.Nil(t, store.ActiveSession())
	assert.Nil(t, store.StopSession())
	assert.Equal(t, 0, store.TickSession(time.Now()))
}

// 提示列表游标完整性
func TestCueCursorIntegrity(t *testing.T) {
	store, _, _ := newTestStore(t)

	for i := 0; i < 4; i++ {
		store.AddCueItem("t")
	}
	require.True(t, store.SetCuePosition(2))

	// 删除游标之前的项：游标左移，仍指向同一逻辑项
	require.True(t, store.RemoveCueItem(0))
	snap := store.Snapshot()
	assert.Equal(t, 1, snap.CueList.CurrentPosition)
	assert.Len(t, snap.CueList.Items, 3)

	// 删除游标之后的项：游标不动
	require.True(t, store.RemoveCueItem(2))
	assert.Equal(t, 1, store.Snapshot().CueList.CurrentPosition)

	// 逐个删完：只剩一项再删，游标归 -1
	require.True(t, store.RemoveCueItem(1))
	require.True(t, store.RemoveCueItem(0))
	snap = store.Snapshot()
	assert.Empty(t, snap.CueList.Items)
	assert.Equal(t, -1, snap.CueList.CurrentPosition)
}

func TestCueReorderAndStatus(t *testing.T) {
	store, _, _ := newTestStore(t)

	a := store.AddCueItem("a")
	b := store.AddCueItem("b")
	c := store.AddCueItem("c")
	_ = b

	require.True(t, store.MoveCueItem(2, 0))
	snap := store.Snapshot()
	assert.Equal(t, c.ID, snap.CueList.Items[0].ID)
	assert.Equal(t, a.ID, snap.CueList.Items[1].ID)
	// 顺序号重写
	for i, item := range snap.CueList.Items {
		assert.Equal(t, i, item.Order)
	}

	require.True(t, store.SetCuePosition(1))
	snap = store.Snapshot()
	assert.Equal(t, model.CueStatusPlayed, snap.CueList.Items[0].Status)
	assert.Equal(t, model.CueStatusPlaying, snap.CueList.Items[1].Status)
	assert.Equal(t, model.CueStatusPending, snap.CueList.Items[2].Status)

	assert.False(t, store.SetCuePosition(5))
}

func TestChannelQueueOps(t *testing.T) {
	store, _, _ := newTestStore(t)

	store.EnqueueTrack(model.ChannelMusic, "t1")
	store.EnqueueTrack(model.ChannelMusic, "t2")
	store.EnqueueTrack(model.ChannelMusic, "t3")
	store.SetChannelState(model.ChannelMusic, model.ChannelState{CurrentIndex: 2, Volume: 0.7})

	require.True(t, store.MoveQueueItem(model.ChannelMusic, 0, 2))
	snap := store.Snapshot()
	assert.Equal(t, "t2", snap.ChannelQueues[model.ChannelMusic][0].TrackID)
	assert.Equal(t, "t1", snap.ChannelQueues[model.ChannelMusic][2].TrackID)

	// 删除游标之前的项，游标左移
	require.True(t, store.RemoveQueueItem(model.ChannelMusic, 0))
	snap = store.Snapshot()
	assert.Equal(t, 1, snap.ChannelStates[model.ChannelMusic].CurrentIndex)

	// 其它通道不受影响
	assert.Empty(t, snap.ChannelQueues[model.ChannelAmbient])
	assert.False(t, store.RemoveQueueItem(model.ChannelMusic, 9))
}
