package migrate_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"MagicDJ/cache"
	"MagicDJ/core/migrate"
	"MagicDJ/core/session"
	"MagicDJ/model"
	"MagicDJ/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*migrate.Engine, *cache.MemoryStateCache, *storage.AudioStore) {
	t.Helper()
	states := cache.NewMemoryStateCache()
	audio := storage.NewAudioStore(storage.NewMemoryBackend(), storage.Options{
		InitBackoff: time.Millisecond,
	})
	require.NoError(t, audio.Init(context.Background()))
	return migrate.New(states, audio), states, audio
}

func legacyTrack(id string, payload []byte) model.PortableTrack {
	return model.PortableTrack{
		Track: model.Track{
			ID:     id,
			Name:   "track " + id,
			Type:   model.TrackTypeSong,
			Source: model.TrackSourceUpload,
			Volume: 1.0,
		},
		AudioData: base64.StdEncoding.EncodeToString(payload),
	}
}

func TestMigrateMovesInlineAudio(t *testing.T) {
	engine, states, audio := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, states.SaveLegacy(ctx, &model.LegacyState{
		Tracks: []model.PortableTrack{
			legacyTrack("a", []byte("aaaa")),
			legacyTrack("b", []byte("bbbbbb")),
		},
	}))

	pending, err := engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	result, err := engine.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MigratedCount)
	assert.Equal(t, int64(10), result.TotalSizeBytes)
	assert.Empty(t, result.Errors)
	assert.Equal(t, migrate.StatusSuccess, engine.Status())

	// 音频已落库
	data, err := audio.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaa"), data)

	// 内联数据已清空，迁移标记已更新
	legacy, err := states.LoadLegacy(ctx)
	require.NoError(t, err)
	for _, track := range legacy.Tracks {
		assert.Empty(t, track.AudioData)
		assert.True(t, track.HasLocalAudio)
	}
}

// 迁移幂等性：紧接着的第二次迁移不产生新工作，待迁移数不增
func TestMigrateIdempotent(t *testing.T) {
	engine, states, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, states.SaveLegacy(ctx, &model.LegacyState{
		Tracks: []model.PortableTrack{legacyTrack("a", []byte("data"))},
	}))

	first, err := engine.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.MigratedCount)

	second, err := engine.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.MigratedCount)
	assert.Empty(t, second.Errors)

	pending, err := engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

// 部分失败容忍：坏的那条记入errors，其余照常提交且可读回
func TestMigratePartialFailure(t *testing.T) {
	engine, states, audio := newTestEngine(t)
	ctx := context.Background()

	corrupt := legacyTrack("bad", nil)
	corrupt.AudioData = "&&&not-base64&&&"

	require.NoError(t, states.SaveLegacy(ctx, &model.LegacyState{
		Tracks: []model.PortableTrack{
			legacyTrack("a", []byte("good-a")),
			corrupt,
			legacyTrack("c", []byte("good-c")),
		},
	}))

	result, err := engine.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MigratedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad", result.Errors[0].TrackID)
	assert.Equal(t, migrate.StatusPartial, engine.Status())

	// 好的条目迁移后可读回
	for _, id := range []string{"a", "c"} {
		data, getErr := audio.Get(ctx, id)
		require.NoError(t, getErr)
		assert.NotEmpty(t, data)
	}

	// 坏的那条仍然待迁移，可重试
	pending, err := engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestMigrateAllFailed(t *testing.T) {
	engine, states, _ := newTestEngine(t)
	ctx := context.Background()

	corrupt := legacyTrack("bad", nil)
	corrupt.AudioData = "!!!"
	require.NoError(t, states.SaveLegacy(ctx, &model.LegacyState{
		Tracks: []model.PortableTrack{corrupt},
	}))

	result, err := engine.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.MigratedCount)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, migrate.StatusFailed, engine.Status())
}

func TestMigrateNothingPending(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	result, err := engine.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.MigratedCount)
	assert.Equal(t, migrate.StatusSuccess, engine.Status())
}

func TestMigrateNotifiesPerTrack(t *testing.T) {
	engine, states, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, states.SaveLegacy(ctx, &model.LegacyState{
		Tracks: []model.PortableTrack{
			legacyTrack("a", []byte("x")),
			legacyTrack("b", []byte("y")),
		},
	}))

	var migrated []string
	engine.SetOnTrackMigrated(func(track model.Track) {
		migrated = append(migrated, track.ID)
	})

	_, err := engine.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, migrated)
}

// 只存在于旧版存储的音轨，迁移后要出现在当前元数据层，
// 不允许只剩一份二进制而元数据里无迹可寻
func TestMigrateSurfacesLegacyOnlyTracks(t *testing.T) {
	engine, states, audio := newTestEngine(t)
	ctx := context.Background()

	store := session.New(audio, states, nil, nil)
	known := store.AddTrack(model.Track{Name: "已知音轨", Type: model.TrackTypeSong, Source: model.TrackSourceUpload})

	legacyOnly := legacyTrack("legacy-only", []byte("old-bytes"))
	knownLegacy := model.PortableTrack{
		Track:     model.Track{ID: known.ID, Name: known.Name, Type: known.Type, Source: known.Source},
		AudioData: base64.StdEncoding.EncodeToString([]byte("known-bytes")),
	}
	require.NoError(t, states.SaveLegacy(ctx, &model.LegacyState{
		Tracks: []model.PortableTrack{knownLegacy, legacyOnly},
	}))

	engine.SetOnTrackMigrated(func(track model.Track) {
		store.MarkTrackMigrated(ctx, track)
	})

	result, err := engine.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.MigratedCount)

	// 已知音轨刷新了迁移标记与播放引用
	gotKnown, ok := store.Track(known.ID)
	require.True(t, ok)
	assert.True(t, gotKnown.HasLocalAudio)
	assert.NotEmpty(t, gotKnown.URL)

	// 旧版独有的音轨被补进当前层
	gotLegacy, ok := store.Track("legacy-only")
	require.True(t, ok)
	assert.Equal(t, "track legacy-only", gotLegacy.Name)
	assert.True(t, gotLegacy.HasLocalAudio)
	assert.NotEmpty(t, gotLegacy.URL)

	data, err := audio.Get(ctx, "legacy-only")
	require.NoError(t, err)
	assert.Equal(t, []byte("old-bytes"), data)
}
