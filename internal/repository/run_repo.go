package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"gorm.io/gorm"
)

// RunRepository persists generation run records. State transitions go
// through conditional updates so a terminal run can never be re-entered.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a pending run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - runType: week or item.
// Returns:
//   - *domain.GenerationRun: the persisted run.
//   - error: non-nil if the insert fails.
func (r *RunRepository) Create(ctx context.Context, projectID string, runType domain.RunType) (*domain.GenerationRun, error) {
	run := &domain.GenerationRun{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Type:      runType,
		Status:    domain.RunStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// MarkRunning moves a pending run to running and stamps started_at. The
// transition only fires from pending, so a retried job that finds the run
// already running or terminal is a no-op.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *RunRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.GenerationRun{}).
		Where("id = ? AND status = ?", id, domain.RunStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.RunStatusRunning,
			"started_at": now,
		}).Error
}

// MarkFinished moves a run to a terminal status and stamps finished_at.
// Guarded on non-terminal status so terminal states are sticky; a run that
// failed before ever leaving pending can still be closed out.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
//   - status: terminal status, succeeded or failed.
//   - errMsg: diagnostic recorded on failure, empty on success.
// Returns:
//   - error: non-nil if the update fails.
func (r *RunRepository) MarkFinished(ctx context.Context, id string, status domain.RunStatus, errMsg string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.GenerationRun{}).
		Where("id = ? AND status IN ?", id, []domain.RunStatus{domain.RunStatusPending, domain.RunStatusRunning}).
		Updates(map[string]interface{}{
			"status":      status,
			"finished_at": now,
			"error":       errMsg,
		}).Error
}

// GetByID retrieves a run by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
// Returns:
//   - *domain.GenerationRun: run record if found.
//   - error: non-nil if lookup fails.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.GenerationRun, error) {
	var run domain.GenerationRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
