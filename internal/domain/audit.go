package domain

import "time"

// AuditLog is a fire-and-forget record of a state-changing action. Audit
// writes are never allowed to fail the primary operation.
type AuditLog struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	OrgID      string    `gorm:"type:text;index" json:"org_id"`
	ProjectID  string    `gorm:"type:text;index" json:"project_id"`
	ActorID    string    `gorm:"type:text" json:"actor_id"`
	Action     string    `gorm:"type:text;not null" json:"action"`
	EntityType string    `gorm:"type:text" json:"entity_type"`
	EntityID   string    `gorm:"type:text" json:"entity_id"`
	Diff       string    `gorm:"type:text" json:"diff,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for AuditLog.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (AuditLog) TableName() string {
	return "audit_logs"
}
