package models

import (
	"encoding/json"
	"time"
)

// 同步操作的资源类型
const (
	SyncResourceAlerts           = "alerts"
	SyncResourceAcknowledgements = "acknowledgements"
	SyncResourceMeasurements     = "measurements"
)

// 同步操作动作
const (
	SyncActionCreate      = "create"
	SyncActionUpdate      = "update"
	SyncActionAcknowledge = "acknowledge"
)

// PendingSyncOperation 待同步操作（对应 sync_outbox 表，由 Sync Coordinator 独占管理）
type PendingSyncOperation struct {
	OperationID  string          `json:"id" db:"operation_id"`
	ResourceType string          `json:"type" db:"resource_type"`
	Action       string          `json:"action" db:"action"`
	Data         json.RawMessage `json:"data" db:"payload"`
	Timestamp    time.Time       `json:"timestamp" db:"created_at"`
	Attempts     int             `json:"attempts" db:"attempts"`
	NextAttempt  time.Time       `json:"nextAttempt" db:"next_attempt"`
	Priority     bool            `json:"priority" db:"priority"`
	HasConflict  bool            `json:"hasConflict" db:"has_conflict"`
	Version      int64           `json:"version" db:"version"`
	LastError    *string         `json:"lastError,omitempty" db:"last_error"`
}

// SyncResult 一次队列排空的结果统计
type SyncResult struct {
	SuccessCount  int `json:"successCount"`
	FailCount     int `json:"failCount"`
	ConflictCount int `json:"conflictCount"`
}

// Add 累加另一组统计结果
func (r *SyncResult) Add(other SyncResult) {
	r.SuccessCount += other.SuccessCount
	r.FailCount += other.FailCount
	r.ConflictCount += other.ConflictCount
}
