package model

// WarningLevel 存储使用率告警级别
type WarningLevel string

const (
	WarningLevelNormal   WarningLevel = "normal"
	WarningLevelWarning  WarningLevel = "warning"
	WarningLevelDanger   WarningLevel = "danger"
	WarningLevelCritical WarningLevel = "critical"
)

// StorageQuota 派生的存储配额视图，每次保存/删除后重新计算
type StorageQuota struct {
	Used       int64   `json:"used"`
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
}

// MigrationError 单个音轨迁移失败的记录
type MigrationError struct {
	TrackID string `json:"trackId"`
	Error   string `json:"error"`
}

// MigrationResult 一次迁移批次的结果。部分成功是常态：
// 成功计数与逐条失败必须同时呈现，不允许折叠成单个布尔值。
type MigrationResult struct {
	MigratedCount  int              `json:"migratedCount"`
	TotalSizeBytes int64            `json:"totalSizeBytes"`
	Errors         []MigrationError `json:"errors"`
}
