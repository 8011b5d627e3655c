package domain

import "time"

// RiskLevel rates how risky posting to a channel is.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
)

// ParseRiskTolerance maps a project risk-tolerance string to the maximum
// acceptable channel risk level. Unknown values default to low.
func ParseRiskTolerance(s string) RiskLevel {
	switch s {
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	default:
		return RiskLow
	}
}

// Channel is a target community a content item can be posted to, rated for
// risk and capped by a weekly posting quota.
type Channel struct {
	ID              string    `gorm:"type:text;primaryKey" json:"id"`
	ProjectID       string    `gorm:"type:text;not null;index" json:"project_id"`
	Name            string    `gorm:"type:text;not null" json:"name"`
	MaxPostsPerWeek int       `gorm:"default:1" json:"max_posts_per_week"`
	RiskLevel       RiskLevel `gorm:"default:1" json:"risk_level"`
	Active          bool      `gorm:"default:true" json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Channel.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Channel) TableName() string {
	return "channels"
}

// Persona is an author identity rotated across slots.
type Persona struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ProjectID string    `gorm:"type:text;not null;index" json:"project_id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Voice     string    `gorm:"type:text" json:"voice"`
	Bio       string    `gorm:"type:text" json:"bio"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Persona.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Persona) TableName() string {
	return "personas"
}

// Topic is a subject pool entry content is generated from.
type Topic struct {
	ID        string      `gorm:"type:text;primaryKey" json:"id"`
	ProjectID string      `gorm:"type:text;not null;index" json:"project_id"`
	Name      string      `gorm:"type:text;not null" json:"name"`
	Angle     string      `gorm:"type:text" json:"angle"`
	Keywords  StringArray `gorm:"type:text" json:"keywords"`
	Active    bool        `gorm:"default:true" json:"active"`
	UseCount  int         `gorm:"default:0" json:"use_count"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Topic.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Topic) TableName() string {
	return "topics"
}

// Project holds per-project generation settings.
type Project struct {
	ID                string    `gorm:"type:text;primaryKey" json:"id"`
	OrgID             string    `gorm:"type:text;not null;index" json:"org_id"`
	Name              string    `gorm:"type:text;not null" json:"name"`
	BrandVoice        string    `gorm:"type:text" json:"brand_voice"`
	RiskTolerance     string    `gorm:"type:text;default:low" json:"risk_tolerance"` // low, medium, high
	PostsPerWeek      int       `gorm:"default:3" json:"posts_per_week"`
	CandidatesPerSlot int       `gorm:"default:3" json:"candidates_per_slot"`
	MinQualityScore   float64   `gorm:"default:6" json:"min_quality_score"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Project.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Project) TableName() string {
	return "projects"
}
