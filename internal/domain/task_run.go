package domain

import "time"

// RunStatus represents the status of a task run.
// Values include RunStatusPending, RunStatusRunning, RunStatusSuccess, and
// RunStatusFailed.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// TaskRun is one execution attempt and its outcome for a Task. Runs are
// mutated only by the owning execution and are immutable once terminal.
// Ordering by StartedAt defines run history for a task.
type TaskRun struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	TaskID     string     `gorm:"type:text;not null;index:idx_task_runs_task" json:"task_id"`
	Status     RunStatus  `gorm:"type:text;default:pending;index:idx_task_runs_status" json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Logs       string     `gorm:"type:text" json:"logs"`
	RowCount   int        `gorm:"default:0" json:"row_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for TaskRun.
func (TaskRun) TableName() string {
	return "task_runs"
}
