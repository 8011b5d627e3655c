package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"gorm.io/gorm"
)

// AssetRepository persists content asset versions and their quality scores.
// Assets are append-only: a new version archives the previous active row
// inside the same transaction.
type AssetRepository struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *AssetRepository: repository instance bound to db.
func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// CreateVersion persists a new active asset version for a calendar item.
// The previous active version, if any, is archived in the same transaction
// and the new row gets version = previous+1, so there is exactly one active
// version per item at all times.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - asset: asset to persist; ID and Version are assigned here.
// Returns:
//   - *domain.ContentAsset: the persisted version.
//   - error: non-nil if the transaction fails.
func (r *AssetRepository) CreateVersion(ctx context.Context, asset *domain.ContentAsset) (*domain.ContentAsset, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev domain.ContentAsset
		err := tx.Where("calendar_item_id = ? AND status = ?", asset.CalendarItemID, domain.AssetStatusActive).
			Order("version DESC").
			First(&prev).Error
		switch {
		case err == nil:
			if err := tx.Model(&domain.ContentAsset{}).
				Where("id = ?", prev.ID).
				Update("status", domain.AssetStatusArchived).Error; err != nil {
				return err
			}
			asset.Version = prev.Version + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
			asset.Version = 1
		default:
			return err
		}

		asset.ID = uuid.New().String()
		asset.Status = domain.AssetStatusActive
		return tx.Create(asset).Error
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// AttachScore records the quality score for a persisted asset. The table
// has a unique index on content_asset_id; a second attach for the same
// asset fails rather than silently replacing the original score.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - assetID: asset the score belongs to.
//   - score: judged dimensions with rater attribution.
// Returns:
//   - *domain.QualityScore: the persisted score row.
//   - error: non-nil if the insert fails.
func (r *AssetRepository) AttachScore(ctx context.Context, assetID string, score domain.Score) (*domain.QualityScore, error) {
	qs := &domain.QualityScore{
		ID:             uuid.New().String(),
		ContentAssetID: assetID,
		Hook:           score.Hook,
		Authenticity:   score.Authenticity,
		Relevance:      score.Relevance,
		Subtlety:       score.Subtlety,
		Readability:    score.Readability,
		Overall:        score.Overall,
		Rater:          score.Rater,
		Reasoning:      score.Reasoning,
	}
	if err := r.db.WithContext(ctx).Create(qs).Error; err != nil {
		return nil, err
	}
	return qs, nil
}

// GetActiveByItem returns the live asset version for a calendar item.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - calendarItemID: item the asset backs.
// Returns:
//   - *domain.ContentAsset: active version if found.
//   - error: non-nil if lookup fails.
func (r *AssetRepository) GetActiveByItem(ctx context.Context, calendarItemID string) (*domain.ContentAsset, error) {
	var asset domain.ContentAsset
	err := r.db.WithContext(ctx).
		Where("calendar_item_id = ? AND status = ?", calendarItemID, domain.AssetStatusActive).
		Order("version DESC").
		First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetByID retrieves an asset version by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: asset ID.
// Returns:
//   - *domain.ContentAsset: asset record if found.
//   - error: non-nil if lookup fails.
func (r *AssetRepository) GetByID(ctx context.Context, id string) (*domain.ContentAsset, error) {
	var asset domain.ContentAsset
	if err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListVersionsByItem returns every version of an item's content, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - calendarItemID: item the assets back.
// Returns:
//   - []domain.ContentAsset: versions ordered by version DESC.
//   - error: non-nil if the query fails.
func (r *AssetRepository) ListVersionsByItem(ctx context.Context, calendarItemID string) ([]domain.ContentAsset, error) {
	var assets []domain.ContentAsset
	err := r.db.WithContext(ctx).
		Where("calendar_item_id = ?", calendarItemID).
		Order("version DESC").
		Find(&assets).Error
	return assets, err
}

// TopRatedByProject returns the project's best-reviewed published content,
// used as few-shot material for new generations. Only assets rated 4 or
// better qualify, ordered by rating then realized engagement.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - limit: maximum rows returned.
// Returns:
//   - []domain.ContentAsset: qualifying assets, best first.
//   - error: non-nil if the query fails.
func (r *AssetRepository) TopRatedByProject(ctx context.Context, projectID string, limit int) ([]domain.ContentAsset, error) {
	var assets []domain.ContentAsset
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND rating >= ?", projectID, 4).
		Order("rating DESC, engagement_score DESC").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}

// UpdateEngagement writes an engagement snapshot onto an asset.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - assetID: asset to update.
//   - score: latest engagement score.
// Returns:
//   - error: non-nil if the update fails.
func (r *AssetRepository) UpdateEngagement(ctx context.Context, assetID string, score float64) error {
	res := r.db.WithContext(ctx).Model(&domain.ContentAsset{}).
		Where("id = ?", assetID).
		Update("engagement_score", score)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReadinessStats aggregates how much reviewed material a project has
// accumulated, used by the training-readiness report.
type ReadinessStats struct {
	RatedAssets      int64   `json:"rated_assets"`       // rating >= 4
	DistinctChannels int64   `json:"distinct_channels"`  // across rated items
	DistinctPersonas int64   `json:"distinct_personas"`  // across rated items
	MinOverall       float64 `json:"min_overall"`        // over attached scores
	AvgOverall       float64 `json:"avg_overall"`        // over attached scores
}

// Readiness computes the readiness aggregates for a project.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - *ReadinessStats: aggregates; zero values when nothing is rated yet.
//   - error: non-nil if a query fails.
func (r *AssetRepository) Readiness(ctx context.Context, projectID string) (*ReadinessStats, error) {
	stats := &ReadinessStats{}

	if err := r.db.WithContext(ctx).Model(&domain.ContentAsset{}).
		Where("project_id = ? AND rating >= ?", projectID, 4).
		Count(&stats.RatedAssets).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&domain.ContentAsset{}).
		Select("COUNT(DISTINCT calendar_items.channel_id)").
		Joins("JOIN calendar_items ON calendar_items.id = content_assets.calendar_item_id").
		Where("content_assets.project_id = ? AND content_assets.rating >= ?", projectID, 4).
		Scan(&stats.DistinctChannels).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&domain.ContentAsset{}).
		Select("COUNT(DISTINCT calendar_items.persona_id)").
		Joins("JOIN calendar_items ON calendar_items.id = content_assets.calendar_item_id").
		Where("content_assets.project_id = ? AND content_assets.rating >= ?", projectID, 4).
		Scan(&stats.DistinctPersonas).Error; err != nil {
		return nil, err
	}

	var agg struct {
		Min float64
		Avg float64
	}
	err := r.db.WithContext(ctx).Model(&domain.QualityScore{}).
		Select("COALESCE(MIN(quality_scores.overall), 0) as min, COALESCE(AVG(quality_scores.overall), 0) as avg").
		Joins("JOIN content_assets ON content_assets.id = quality_scores.content_asset_id").
		Where("content_assets.project_id = ?", projectID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	stats.MinOverall = agg.Min
	stats.AvgOverall = agg.Avg

	return stats, nil
}

// UpdateRating records a human review rating on an asset.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - assetID: asset to update.
//   - rating: review rating, 1 to 5.
// Returns:
//   - error: non-nil if the update fails.
func (r *AssetRepository) UpdateRating(ctx context.Context, assetID string, rating int) error {
	res := r.db.WithContext(ctx).Model(&domain.ContentAsset{}).
		Where("id = ?", assetID).
		Update("rating", rating)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
