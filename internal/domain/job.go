package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a queued job.
// Values include JobStatusQueued, JobStatusRunning, JobStatusSucceeded, and JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobType identifies which handler a job is dispatched to.
type JobType string

const (
	JobTypeGenerateWeek  JobType = "generate_week"
	JobTypeGenerateItem  JobType = "generate_item"
	JobTypePublishItem   JobType = "publish_item"
	JobTypeIngestMetrics JobType = "ingest_metrics"
)

// Job represents one durable unit of asynchronous work.
// A job has at most one non-null lock at a time: locked_by and locked_at are
// set together on claim and cleared together on release. Attempts never
// decreases.
type Job struct {
	ID        string          `gorm:"type:text;primaryKey" json:"id"`
	OrgID     string          `gorm:"type:text;not null;index" json:"org_id"`
	ProjectID string          `gorm:"type:text;not null;index" json:"project_id"`
	Type      JobType         `gorm:"type:text;not null;index" json:"type"`
	Payload   json.RawMessage `gorm:"type:text" json:"payload"`
	Status    JobStatus       `gorm:"type:text;index:idx_jobs_status;default:queued" json:"status"`
	RunAt     time.Time       `gorm:"index:idx_jobs_run_at" json:"run_at"`
	Attempts  int             `gorm:"default:0" json:"attempts"`
	LastError string          `gorm:"type:text" json:"last_error,omitempty"`
	LockedAt  *time.Time      `json:"locked_at,omitempty"`
	LockedBy  *string         `gorm:"type:text" json:"locked_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "jobs"
}

// GenerateWeekPayload is the payload for generate_week jobs.
type GenerateWeekPayload struct {
	WeekStartDate   string `json:"week_start_date"` // YYYY-MM-DD
	CalendarWeekID  string `json:"calendar_week_id"`
	GenerationRunID string `json:"generation_run_id"`
	PostsPerWeek    int    `json:"posts_per_week"`
}

// GenerateItemPayload is the payload for generate_item jobs.
type GenerateItemPayload struct {
	CalendarItemID  string `json:"calendar_item_id"`
	GenerationRunID string `json:"generation_run_id"`
}

// PublishItemPayload is the payload for publish_item jobs. The job's run_at
// carries the scheduled publish time, so the queue doubles as a delay line.
type PublishItemPayload struct {
	CalendarItemID string `json:"calendar_item_id"`
	ContentAssetID string `json:"content_asset_id"`
}

// IngestMetricsPayload is the payload for ingest_metrics jobs. It carries an
// engagement snapshot keyed by content asset ID.
type IngestMetricsPayload struct {
	Engagement map[string]float64 `json:"engagement"`
}

// DecodeJobPayload decodes a raw payload into the closed struct for the given
// job type. Unknown types are rejected here, at decode time, rather than at
// use time.
// Parameters:
//   - jobType: the job's type tag.
//   - raw: raw JSON payload stored with the job.
// Returns:
//   - interface{}: one of *GenerateWeekPayload, *GenerateItemPayload,
//     *PublishItemPayload, *IngestMetricsPayload.
//   - error: non-nil if the type is unknown or the JSON does not decode.
func DecodeJobPayload(jobType JobType, raw json.RawMessage) (interface{}, error) {
	switch jobType {
	case JobTypeGenerateWeek:
		var p GenerateWeekPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", jobType, err)
		}
		return &p, nil
	case JobTypeGenerateItem:
		var p GenerateItemPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", jobType, err)
		}
		return &p, nil
	case JobTypePublishItem:
		var p PublishItemPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", jobType, err)
		}
		return &p, nil
	case JobTypeIngestMetrics:
		var p IngestMetricsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", jobType, err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
}
