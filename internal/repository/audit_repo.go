package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"gorm.io/gorm"
)

// AuditRepository persists audit log entries.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new AuditRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *AuditRepository: repository instance bound to db.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts one audit entry. Callers treat failures as non-fatal.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: audit entry; ID is assigned here when empty.
// Returns:
//   - error: non-nil if the insert fails.
func (r *AuditRepository) Record(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByEntity returns the audit trail for one entity, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entityType: entity kind, e.g. "calendar_item".
//   - entityID: entity ID.
//   - limit: maximum rows returned.
// Returns:
//   - []domain.AuditLog: matching entries ordered by created_at DESC.
//   - error: non-nil if the query fails.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditLog, error) {
	var entries []domain.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
