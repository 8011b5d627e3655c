package repository

import (
	"context"

	"github.com/mkaplan/postloom/internal/domain"
	"gorm.io/gorm"
)

// PlanningRepository loads the planning inputs for a project: its settings,
// active channels, personas, and the topic pool.
type PlanningRepository struct {
	db *gorm.DB
}

// NewPlanningRepository creates a new PlanningRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PlanningRepository: repository instance bound to db.
func NewPlanningRepository(db *gorm.DB) *PlanningRepository {
	return &PlanningRepository{db: db}
}

// GetProject retrieves a project with its generation settings.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID.
// Returns:
//   - *domain.Project: project record if found.
//   - error: non-nil if lookup fails.
func (r *PlanningRepository) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// ActiveChannels returns a project's active channels in stable name order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - []domain.Channel: active channels ordered by name.
//   - error: non-nil if the query fails.
func (r *PlanningRepository) ActiveChannels(ctx context.Context, projectID string) ([]domain.Channel, error) {
	var channels []domain.Channel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND active = ?", projectID, true).
		Order("name ASC").
		Find(&channels).Error
	return channels, err
}

// ActivePersonas returns a project's active personas in stable name order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - []domain.Persona: active personas ordered by name.
//   - error: non-nil if the query fails.
func (r *PlanningRepository) ActivePersonas(ctx context.Context, projectID string) ([]domain.Persona, error) {
	var personas []domain.Persona
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND active = ?", projectID, true).
		Order("name ASC").
		Find(&personas).Error
	return personas, err
}

// ActiveTopics returns a project's active topics, least-used first so the
// planner naturally rotates through the pool.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - []domain.Topic: active topics ordered by use_count then name.
//   - error: non-nil if the query fails.
func (r *PlanningRepository) ActiveTopics(ctx context.Context, projectID string) ([]domain.Topic, error) {
	var topics []domain.Topic
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND active = ?", projectID, true).
		Order("use_count ASC, name ASC").
		Find(&topics).Error
	return topics, err
}

// GetChannel retrieves a channel by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: channel ID.
// Returns:
//   - *domain.Channel: channel record if found.
//   - error: non-nil if lookup fails.
func (r *PlanningRepository) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	var ch domain.Channel
	if err := r.db.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetPersona retrieves a persona by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: persona ID.
// Returns:
//   - *domain.Persona: persona record if found.
//   - error: non-nil if lookup fails.
func (r *PlanningRepository) GetPersona(ctx context.Context, id string) (*domain.Persona, error) {
	var p domain.Persona
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetTopic retrieves a topic by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: topic ID.
// Returns:
//   - *domain.Topic: topic record if found.
//   - error: non-nil if lookup fails.
func (r *PlanningRepository) GetTopic(ctx context.Context, id string) (*domain.Topic, error) {
	var t domain.Topic
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// IncrementTopicUse bumps a topic's use counter after it was planned into a
// slot. Best effort; the caller logs and continues on error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: topic ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *PlanningRepository) IncrementTopicUse(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Topic{}).
		Where("id = ?", id).
		Update("use_count", gorm.Expr("use_count + 1")).Error
}
