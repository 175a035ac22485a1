package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// OperationLog 会话期间一次已执行的控制操作
type OperationLog struct {
	Type    string `json:"type"`
	TrackID string `json:"trackId,omitempty"`
	At      int64  `json:"at"` // unix毫秒
}

// OperationLogList 自定义类型用于 GORM JSON 字段的自动扫描
type OperationLogList []OperationLog

// Scan 实现 sql.Scanner 接口
func (l *OperationLogList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*l = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*l = nil
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Value 实现 driver.Valuer 接口
func (l OperationLogList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// SessionRecord 一次直播会话的记录。同一时刻至多一条未关闭记录；
// stop 时写入 EndTime 与冻结的 DurationSeconds。
type SessionRecord struct {
	ID                 string           `json:"id" gorm:"primaryKey;size:36"`
	StartTime          time.Time        `json:"startTime"`
	EndTime            *time.Time       `json:"endTime"`
	DurationSeconds    int              `json:"durationSeconds"`
	OperationLogs      OperationLogList `json:"operationLogs" gorm:"type:json"`
	ModeSwitchCount    int              `json:"modeSwitchCount"`
	AIInteractionCount int              `json:"aiInteractionCount"`
}
