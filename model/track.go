package model

// TrackType 音轨用途分类
type TrackType string

const (
	TrackTypeIntro      TrackType = "intro"
	TrackTypeTransition TrackType = "transition"
	TrackTypeEffect     TrackType = "effect"
	TrackTypeSong       TrackType = "song"
	TrackTypeFiller     TrackType = "filler"
	TrackTypeRescue     TrackType = "rescue"
)

// TrackSource 音轨来源
type TrackSource string

const (
	TrackSourceTTS    TrackSource = "tts"    // TTS生成
	TrackSourceUpload TrackSource = "upload" // 用户上传
)

// Track represents a named audio asset playable in a live session.
// URL is an ephemeral playable reference (presigned URL); it is never
// persisted — the binary store is linked only by track id.
type Track struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Type          TrackType   `json:"type"`
	Source        TrackSource `json:"source"`
	URL           string      `json:"url"`
	HasLocalAudio bool        `json:"hasLocalAudio"`
	Volume        float64     `json:"volume"`
	Duration      float64     `json:"duration,omitempty"`
	Hotkey        string      `json:"hotkey,omitempty"`
	Loop          bool        `json:"loop,omitempty"`
	TextContent   string      `json:"textContent,omitempty"`
}

// TrackPatch 音轨元数据的部分更新，nil字段表示保持原值
type TrackPatch struct {
	Name        *string      `json:"name,omitempty"`
	Type        *TrackType   `json:"type,omitempty"`
	Volume      *float64     `json:"volume,omitempty"`
	Duration    *float64     `json:"duration,omitempty"`
	Hotkey      *string      `json:"hotkey,omitempty"`
	Loop        *bool        `json:"loop,omitempty"`
	TextContent *string      `json:"textContent,omitempty"`
}

// PortableTrack 携带可选内联音频数据的音轨，用于旧版存储层和配置文件导入导出。
// AudioData 为base64编码的音频内容，迁移完成后清空。
type PortableTrack struct {
	Track
	AudioData string `json:"audioData,omitempty"`
}
