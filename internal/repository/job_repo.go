package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles the durable job queue. All cross-process
// coordination happens through the conditional updates in ClaimNext and
// ReleaseStaleLocks; there is no in-process locking.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a queued job. A zero runAt means the job is due
// immediately; a future runAt turns the queue into a delay line.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - orgID: owning organization.
//   - projectID: owning project.
//   - jobType: job type tag; must be a known type.
//   - payload: type-specific payload, serialized as JSON.
//   - runAt: earliest eligible execution time.
// Returns:
//   - *domain.Job: the persisted job.
//   - error: non-nil if the payload does not serialize or the insert fails.
func (r *JobRepository) Enqueue(ctx context.Context, orgID, projectID string, jobType domain.JobType, payload interface{}, runAt time.Time) (*domain.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	// Reject unknown types and malformed payloads on the way in, not at
	// dispatch time.
	if _, err := domain.DecodeJobPayload(jobType, raw); err != nil {
		return nil, err
	}

	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}

	job := &domain.Job{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		ProjectID: projectID,
		Type:      jobType,
		Payload:   raw,
		Status:    domain.JobStatusQueued,
		RunAt:     runAt,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically takes ownership of up to limit due jobs. Candidates
// are selected oldest-due first (tie-break by insertion order) and then
// claimed one by one with a conditional update guarded on status=queued, so
// two concurrent claimers can never receive the same job: the loser of the
// race sees zero affected rows and skips it. Attempts is incremented as
// part of the claim so the counter survives a crash right after claiming.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - workerID: ownership token recorded in locked_by.
//   - limit: maximum number of jobs to claim.
// Returns:
//   - []domain.Job: the jobs this worker now owns, in due order.
//   - error: non-nil if a query fails.
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	var due []domain.Job
	if err := r.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", domain.JobStatusQueued, now).
		Order("run_at ASC, created_at ASC").
		Limit(limit).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}

	claimed := make([]domain.Job, 0, len(due))
	for _, job := range due {
		res := r.db.WithContext(ctx).Model(&domain.Job{}).
			Where("id = ? AND status = ?", job.ID, domain.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":    domain.JobStatusRunning,
				"locked_by": workerID,
				"locked_at": now,
				"attempts":  gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another claimer won the race for this row.
			continue
		}

		job.Status = domain.JobStatusRunning
		job.Attempts++
		lockedBy := workerID
		lockedAt := now
		job.LockedBy = &lockedBy
		job.LockedAt = &lockedAt
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// ReleaseStaleLocks requeues running jobs whose lock has outlived the
// timeout (a crashed worker's leftovers). The lock fields are cleared and
// status returns to queued; attempts is left untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - lockTimeout: maximum age of a live lock.
// Returns:
//   - int64: number of jobs reclaimed.
//   - error: non-nil if the update fails.
func (r *JobRepository) ReleaseStaleLocks(ctx context.Context, lockTimeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-lockTimeout)
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", domain.JobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":    domain.JobStatusQueued,
			"locked_by": nil,
			"locked_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release stale locks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkSucceeded sets a job to its terminal succeeded state and clears the lock.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkSucceeded(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusSucceeded,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": "",
		}).Error
}

// MarkFailed sets a job to its terminal failed state with a diagnostic and
// clears the lock.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - lastError: diagnostic text surfaced via last_error.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusFailed,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": lastError,
		}).Error
}

// RequeueForRetry returns a failed attempt to the queue with a delayed
// run_at and records the failure in last_error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - runAt: next eligible execution time (backoff applied by the caller).
//   - lastError: diagnostic text from the failed attempt.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) RequeueForRetry(ctx context.Context, id string, runAt time.Time, lastError string) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusQueued,
			"run_at":     runAt,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": lastError,
		}).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: non-nil if lookup fails.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountByStatus counts jobs in a given status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: job status to count.
// Returns:
//   - int64: number of matching jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
