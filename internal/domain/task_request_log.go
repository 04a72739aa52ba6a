package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions journaled for task mutations.
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
)

// TaskRequestLog is an append-only audit entry for a task create/update API
// call: who issued it, when, and the raw request payload. Entries are
// write-once and never updated or deleted by the system.
type TaskRequestLog struct {
	ID       string         `gorm:"type:text;primaryKey" json:"id"`
	TaskID   string         `gorm:"type:text;index:idx_task_request_logs_task" json:"task_id"`
	TaskName string         `gorm:"type:text" json:"task_name"`
	Actor    string         `gorm:"type:text" json:"actor"`
	Action   string         `gorm:"type:text" json:"action"`
	Payload  datatypes.JSON `json:"payload"`
	LoggedAt time.Time      `json:"logged_at"`
}

// TableName returns the database table name for TaskRequestLog.
func (TaskRequestLog) TableName() string {
	return "task_request_logs"
}
