package model

// ChannelType 播放通道类型，封闭枚举
type ChannelType string

const (
	ChannelMusic   ChannelType = "music"
	ChannelAmbient ChannelType = "ambient"
	ChannelEffect  ChannelType = "effect"
)

// AllChannelTypes 全部通道类型，通道状态初始化时必须覆盖
var AllChannelTypes = []ChannelType{ChannelMusic, ChannelAmbient, ChannelEffect}

// QueueItem 通道队列中的一项，按id弱引用音轨
type QueueItem struct {
	ID      string `json:"id"`
	TrackID string `json:"trackId"`
}

// ChannelState 单个通道的播放状态
type ChannelState struct {
	CurrentIndex int     `json:"currentIndex"`
	Volume       float64 `json:"volume"`
	IsMuted      bool    `json:"isMuted"`
}

// CueItem 提示列表中的一项
type CueItem struct {
	ID      string `json:"id"`
	TrackID string `json:"trackId"`
	Order   int    `json:"order"`
	Status  string `json:"status"` // pending, playing, played
}

const (
	CueStatusPending = "pending"
	CueStatusPlaying = "playing"
	CueStatusPlayed  = "played"
)

// CueList 有序、带游标的顺序播放列表。CurrentPosition 为 -1 表示无当前项。
type CueList struct {
	Items           []CueItem `json:"items"`
	CurrentPosition int       `json:"currentPosition"`
}

// DJSettings 会话控制台设置
type DJSettings struct {
	AutoPlayNext  bool    `json:"autoPlayNext"`
	DefaultVolume float64 `json:"defaultVolume"`
	TTSVoice      string  `json:"ttsVoice"`
	CrossfadeMS   int     `json:"crossfadeMs"`
}

// SettingsPatch 设置的浅合并部分更新，nil字段保持原值
type SettingsPatch struct {
	AutoPlayNext  *bool    `json:"autoPlayNext,omitempty"`
	DefaultVolume *float64 `json:"defaultVolume,omitempty"`
	TTSVoice      *string  `json:"ttsVoice,omitempty"`
	CrossfadeMS   *int     `json:"crossfadeMs,omitempty"`
}

// StateVersion 当前持久化格式的版本命名空间
const StateVersion = "v2"

// PersistedState 持久化的会话元数据。不含音频二进制和临时播放引用：
// 写入前所有非静态资源路径的 url 一律清空。
type PersistedState struct {
	Version       string                      `json:"version"`
	Settings      DJSettings                  `json:"settings"`
	MasterVolume  float64                     `json:"masterVolume"`
	Tracks        []Track                     `json:"tracks"`
	ChannelQueues map[ChannelType][]QueueItem `json:"channelQueues"`
	ChannelStates map[ChannelType]ChannelState `json:"channelStates"`
	CueList       CueList                     `json:"cueList"`
}

// LegacyState 旧版（v1）持久化格式：音频以内联base64存放在音轨条目里
type LegacyState struct {
	Tracks []PortableTrack `json:"tracks"`
}

// DefaultState 返回编译期默认状态。恢复时以它为底，逐字段覆盖持久化值，
// 保证新增字段拿到默认值而不是零值。
func DefaultState() PersistedState {
	s := PersistedState{
		Version: StateVersion,
		Settings: DJSettings{
			AutoPlayNext:  true,
			DefaultVolume: 0.8,
			TTSVoice:      "zh-CN-XiaoxiaoNeural",
			CrossfadeMS:   400,
		},
		MasterVolume:  1.0,
		Tracks:        []Track{},
		ChannelQueues: make(map[ChannelType][]QueueItem, len(AllChannelTypes)),
		ChannelStates: make(map[ChannelType]ChannelState, len(AllChannelTypes)),
		CueList:       CueList{Items: []CueItem{}, CurrentPosition: -1},
	}
	s.EnsureChannels()
	return s
}

// EnsureChannels 对通道枚举做穷尽性补全，缺失的通道补默认状态
func (s *PersistedState) EnsureChannels() {
	if s.ChannelQueues == nil {
		s.ChannelQueues = make(map[ChannelType][]QueueItem, len(AllChannelTypes))
	}
	if s.ChannelStates == nil {
		s.ChannelStates = make(map[ChannelType]ChannelState, len(AllChannelTypes))
	}
	for _, ch := range AllChannelTypes {
		if _, ok := s.ChannelQueues[ch]; !ok {
			s.ChannelQueues[ch] = []QueueItem{}
		}
		if _, ok := s.ChannelStates[ch]; !ok {
			s.ChannelStates[ch] = ChannelState{CurrentIndex: -1, Volume: 1.0}
		}
	}
}
