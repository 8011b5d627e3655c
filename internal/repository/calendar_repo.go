package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"gorm.io/gorm"
)

// CalendarRepository persists calendar weeks and their items.
type CalendarRepository struct {
	db *gorm.DB
}

// NewCalendarRepository creates a new CalendarRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CalendarRepository: repository instance bound to db.
func NewCalendarRepository(db *gorm.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// GetOrCreateWeek returns the week for a project and start date, creating it
// when absent. Weeks are keyed by (project_id, start_date) so regenerating a
// week reuses the existing row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - startDate: week start in YYYY-MM-DD form.
// Returns:
//   - *domain.CalendarWeek: existing or newly created week.
//   - error: non-nil if the lookup or insert fails.
func (r *CalendarRepository) GetOrCreateWeek(ctx context.Context, projectID, startDate string) (*domain.CalendarWeek, error) {
	var week domain.CalendarWeek
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND start_date = ?", projectID, startDate).
		First(&week).Error
	if err == nil {
		return &week, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	week = domain.CalendarWeek{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		StartDate: startDate,
	}
	if err := r.db.WithContext(ctx).Create(&week).Error; err != nil {
		return nil, err
	}
	return &week, nil
}

// GetWeekByID retrieves a calendar week by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: week ID.
// Returns:
//   - *domain.CalendarWeek: week record if found.
//   - error: non-nil if lookup fails.
func (r *CalendarRepository) GetWeekByID(ctx context.Context, id string) (*domain.CalendarWeek, error) {
	var week domain.CalendarWeek
	if err := r.db.WithContext(ctx).First(&week, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &week, nil
}

// CreateItems inserts the calendar items committed for a week in one batch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - items: items to insert; IDs are assigned here when empty.
// Returns:
//   - error: non-nil if the insert fails.
func (r *CalendarRepository) CreateItems(ctx context.Context, items []domain.CalendarItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// GetItemByID retrieves a calendar item by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
// Returns:
//   - *domain.CalendarItem: item record if found.
//   - error: non-nil if lookup fails.
func (r *CalendarRepository) GetItemByID(ctx context.Context, id string) (*domain.CalendarItem, error) {
	var item domain.CalendarItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItemsByWeek returns all items of a week in scheduled order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - weekID: calendar week ID.
// Returns:
//   - []domain.CalendarItem: items ordered by scheduled_at.
//   - error: non-nil if the query fails.
func (r *CalendarRepository) ListItemsByWeek(ctx context.Context, weekID string) ([]domain.CalendarItem, error) {
	var items []domain.CalendarItem
	err := r.db.WithContext(ctx).
		Where("week_id = ?", weekID).
		Order("scheduled_at ASC").
		Find(&items).Error
	return items, err
}

// MarkItemPublished moves a scheduled item to published and stamps
// published_at. Guarded on status=scheduled so a replayed publish job
// cannot double-publish.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
// Returns:
//   - bool: true when this call performed the transition.
//   - error: non-nil if the update fails.
func (r *CalendarRepository) MarkItemPublished(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.CalendarItem{}).
		Where("id = ? AND status = ?", id, domain.ItemStatusScheduled).
		Updates(map[string]interface{}{
			"status":       domain.ItemStatusPublished,
			"published_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountItemsByChannel counts a week's items per channel. Used to enforce
// per-channel weekly quotas during planning.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - weekID: calendar week ID.
// Returns:
//   - map[string]int: channel ID to item count.
//   - error: non-nil if the query fails.
func (r *CalendarRepository) CountItemsByChannel(ctx context.Context, weekID string) (map[string]int, error) {
	type row struct {
		ChannelID string
		N         int
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.CalendarItem{}).
		Select("channel_id, COUNT(*) as n").
		Where("week_id = ?", weekID).
		Group("channel_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, rw := range rows {
		counts[rw.ChannelID] = rw.N
	}
	return counts, nil
}
