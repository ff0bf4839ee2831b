package models

import "time"

// 实时事件类型
const (
	EventQuotaProgress   = "quota_progress"
	EventQuotaFull       = "quota_full"
	EventQuotaConfigured = "quota_configured"
	EventRollupRebuilt   = "rollup_rebuilt"
)

// FieldworkEvent 推送给仪表盘及消息总线的实地执行事件
type FieldworkEvent struct {
	Type      string                 `json:"type"`
	ProjectID string                 `json:"project_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Origin    string                 `json:"origin,omitempty"` // 发出事件的实例ID，用于跨实例去重
}
