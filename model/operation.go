package model

import "time"

// OperationType 会话期间的控制操作类型
type OperationType string

const (
	OpInterrupt    OperationType = "interrupt"     // 打断AI语音
	OpEmergencyEnd OperationType = "emergency_end" // 紧急结束
	OpForceSubmit  OperationType = "force_submit"  // 强制提交
	OpPlayback     OperationType = "playback"      // 音轨播放
)

// 数字越小优先级越高，严格全序
var operationPriorities = map[OperationType]int{
	OpInterrupt:    1,
	OpEmergencyEnd: 2,
	OpForceSubmit:  3,
	OpPlayback:     4,
}

// Priority 返回操作优先级，未知类型排在所有已知类型之后
func (t OperationType) Priority() int {
	if p, ok := operationPriorities[t]; ok {
		return p
	}
	return 99
}

// Valid 判断是否为已知操作类型
func (t OperationType) Valid() bool {
	_, ok := operationPriorities[t]
	return ok
}

// PendingOperation 防抖窗口内被缓冲的操作。创建后不再修改，
// 队列排空时至多被消费一次。
type PendingOperation struct {
	Type      OperationType `json:"type"`
	Priority  int           `json:"priority"`
	Timestamp time.Time     `json:"timestamp"`
	TrackID   string        `json:"trackId,omitempty"`
}
