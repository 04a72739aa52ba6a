package domain

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Task is a persisted definition of a scheduled or on-demand sync job: which
// index of which source integration is copied into which table of which
// relational destination, on what schedule, under which time window.
type Task struct {
	ID                  string `gorm:"type:text;primaryKey" json:"id"`
	Name                string `gorm:"type:text;not null" json:"name"`
	Schedule            string `gorm:"type:text" json:"schedule"`
	SourceIntegrationID string `gorm:"type:text;not null;index" json:"source_integration"`
	DestIntegrationID   string `gorm:"type:text;not null;index" json:"dest_integration"`
	Index               string `gorm:"type:text;not null" json:"index"`
	DestTable           string `gorm:"column:dest_table" json:"table,omitempty"`
	RowLimit            int    `gorm:"default:1000" json:"limit"`
	TimestampField      string `gorm:"type:text" json:"timestamp_field,omitempty"`
	// RawQuery is an optional user-supplied query clause AND-combined with the
	// resolved time filter when building the source query.
	RawQuery      datatypes.JSON    `json:"query,omitempty"`
	TimeSelection TimeSelection     `gorm:"embedded" json:"time_selection"`
	Columns       ColumnMappingList `gorm:"type:text" json:"columns,omitempty"`
	Enabled       bool              `gorm:"default:true" json:"enabled"`

	// LastEvaluatedAt is the scheduler's persisted evaluation watermark; it
	// survives restarts so cron fires are neither missed nor duplicated.
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	// RunningSince is the single-flight lease. Non-nil means a run is in
	// flight; a stale value past the timeout is treated as a crashed worker.
	RunningSince *time.Time `json:"running_since,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string {
	return "tasks"
}

var tableNameSanitizer = regexp.MustCompile(`[^0-9a-z_]`)

// DefaultTableName derives a destination table name from an index name.
func DefaultTableName(index string) string {
	return "es_sync_" + tableNameSanitizer.ReplaceAllString(strings.ToLower(index), "_")
}

// DestinationTable returns the destination table name, auto-named from the
// index when not set explicitly.
func (t *Task) DestinationTable() string {
	if t.DestTable != "" {
		return t.DestTable
	}
	return DefaultTableName(t.Index)
}

// RawQueryMap decodes the stored raw query clause, returning nil when unset.
func (t *Task) RawQueryMap() map[string]interface{} {
	if len(t.RawQuery) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(t.RawQuery, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

// Validate checks the task definition at save time. Cron syntax is validated
// by the caller, which owns the cron parser.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return Validationf("task name is required")
	}
	if t.SourceIntegrationID == "" {
		return Validationf("source_integration is required")
	}
	if t.DestIntegrationID == "" {
		return Validationf("dest_integration is required")
	}
	if strings.TrimSpace(t.Index) == "" {
		return Validationf("index is required")
	}
	if t.RowLimit < 0 {
		return Validationf("limit must not be negative, got %d", t.RowLimit)
	}
	return t.TimeSelection.Validate()
}
