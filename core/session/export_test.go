package session_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"MagicDJ/core/session"
	"MagicDJ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 导出再导入往返：{id, name, type} 逐条相等
func TestExportImportRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	store.AddTrack(model.Track{ID: "t1", Name: "intro", Type: model.TrackTypeIntro, Source: model.TrackSourceTTS})
	store.AddTrack(model.Track{ID: "t2", Name: "song", Type: model.TrackTypeSong, Source: model.TrackSourceUpload})
	store.AddTrack(model.Track{ID: "t3", Name: "rescue", Type: model.TrackTypeRescue, Source: model.TrackSourceTTS})

	exported, err := store.ExportTracks(ctx)
	require.NoError(t, err)

	restored, _, _ := newTestStore(t)
	count, err := restored.ImportTracks(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	want := store.Tracks()
	got := restored.Tracks()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Type, got[i].Type)
	}
}

// 版本号被改动的文件必须拒绝
func TestImportRejectsWrongVersion(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	store.AddTrack(model.Track{ID: "t1", Name: "x", Type: model.TrackTypeSong, Source: model.TrackSourceTTS})
	exported, err := store.ExportTracks(ctx)
	require.NoError(t, err)

	tampered := strings.Replace(string(exported), `"version": "1.0"`, `"version": "2.0"`, 1)

	restored, _, _ := newTestStore(t)
	_, err = restored.ImportTracks(ctx, []byte(tampered))
	assert.ErrorIs(t, err, session.ErrValidation)
	// 拒绝发生在任何状态变更之前
	assert.Empty(t, restored.Tracks())
}

func TestImportValidation(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing version", `{"tracks": []}`},
		{"tracks not array", `{"version": "1.0", "tracks": {"id": "x"}}`},
		{"track missing id", `{"version": "1.0", "tracks": [{"name": "x", "type": "song"}]}`},
		{"track id not string", `{"version": "1.0", "tracks": [{"id": 5, "name": "x", "type": "song"}]}`},
		{"track missing type", `{"version": "1.0", "tracks": [{"id": "a", "name": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ImportTracks(ctx, []byte(tt.body))
			assert.ErrorIs(t, err, session.ErrValidation)
		})
	}
	assert.Empty(t, store.Tracks())
}

// 携带内联音频的导入：得到会话内临时引用，字节落到旧版存储层
// 等待下一次迁移检查，不直接进二进制存储
func TestImportInlineAudioGoesToLegacyTier(t *testing.T) {
	store, _, audio := newTestStore(t)
	ctx := context.Background()

	origin, _, _ := newTestStore(t)
	origin.AddTrack(model.Track{ID: "up1", Name: "u", Type: model.TrackTypeSong, Source: model.TrackSourceUpload})
	require.NoError(t, origin.SetTrackAudio(ctx, "up1", []byte("uploaded"), ""))
	exported, err := origin.ExportTracks(ctx)
	require.NoError(t, err)

	// 确认导出文件确实携带内联数据
	var file session.TrackConfigFile
	require.NoError(t, json.Unmarshal(exported, &file))
	require.NotEmpty(t, file.Tracks[0].AudioData)

	count, err := store.ImportTracks(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, ok := store.Track("up1")
	require.True(t, ok)
	assert.False(t, got.HasLocalAudio)
	assert.True(t, strings.HasPrefix(got.URL, "data:audio/"))

	// 字节没有写入二进制存储
	data, err := audio.Get(ctx, "up1")
	require.NoError(t, err)
	assert.Nil(t, data)
}
