package domain

import "time"

// RunStatus represents the state of a generation run.
// Pending is the initial state; succeeded and failed are terminal and are
// never re-entered once set.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunType identifies what a generation run covers.
type RunType string

const (
	RunTypeWeek RunType = "week"
	RunTypeItem RunType = "item"
)

// GenerationRun is one execution record covering a full planning+generation
// pass for a week or a single item. FinishedAt is set if and only if the
// status is terminal.
type GenerationRun struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	ProjectID  string     `gorm:"type:text;not null;index" json:"project_id"`
	Type       RunType    `gorm:"type:text;not null" json:"type"`
	Status     RunStatus  `gorm:"type:text;index;default:pending" json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for GenerationRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (GenerationRun) TableName() string {
	return "generation_runs"
}
