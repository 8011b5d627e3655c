package domain

import "time"

// AssetStatus represents whether an asset version is the live one.
type AssetStatus string

const (
	AssetStatusActive   AssetStatus = "active"
	AssetStatusArchived AssetStatus = "archived"
)

// ContentAsset is one version of the content backing a calendar item.
// Edits and regenerations always create a new row with version = prev+1 and
// archive the previous row; rows are never overwritten in place.
type ContentAsset struct {
	ID              string      `gorm:"type:text;primaryKey" json:"id"`
	CalendarItemID  string      `gorm:"type:text;not null;index:idx_assets_item" json:"calendar_item_id"`
	ProjectID       string      `gorm:"type:text;not null;index" json:"project_id"`
	Version         int         `gorm:"not null;default:1" json:"version"`
	Title           string      `gorm:"type:text;not null" json:"title"`
	Body            string      `gorm:"type:text;not null" json:"body"`
	Topic           string      `gorm:"type:text" json:"topic"`
	TargetQueries   StringArray `gorm:"type:text" json:"target_queries"`
	RiskFlags       StringArray `gorm:"type:text" json:"risk_flags"`
	Disclosure      string      `gorm:"type:text" json:"disclosure,omitempty"`
	FollowUpComment string      `gorm:"type:text" json:"follow_up_comment,omitempty"`
	Rating          int         `gorm:"default:0" json:"rating"` // 0 = unrated, 1..5 from review
	EngagementScore float64     `gorm:"default:0" json:"engagement_score"`
	Status          AssetStatus `gorm:"type:text;index;default:active" json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ContentAsset.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ContentAsset) TableName() string {
	return "content_assets"
}

// Rater identifies where a quality score came from.
type Rater string

const (
	RaterHeuristic Rater = "heuristic"
	RaterLLM       Rater = "llm"
	RaterHuman     Rater = "human"
)

// QualityScore is attached 1:1 to a persisted content asset. Overall is
// always clamped to [0,10].
type QualityScore struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	ContentAssetID string    `gorm:"type:text;not null;uniqueIndex" json:"content_asset_id"`
	Hook           float64   `json:"hook"`
	Authenticity   float64   `json:"authenticity"`
	Relevance      float64   `json:"relevance"`
	Subtlety       float64   `json:"subtlety"`
	Readability    float64   `json:"readability"`
	Overall        float64   `json:"overall"`
	Rater          Rater     `gorm:"type:text;not null" json:"rater"`
	Reasoning      string    `gorm:"type:text" json:"reasoning,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for QualityScore.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (QualityScore) TableName() string {
	return "quality_scores"
}

// Candidate is one generated draft competing for selection in a slot.
// Candidates are ephemeral: only the selected one is persisted, as a
// ContentAsset.
type Candidate struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Topic           string   `json:"topic"`
	TargetQueries   []string `json:"target_queries"`
	RiskFlags       []string `json:"risk_flags"`
	Disclosure      string   `json:"disclosure,omitempty"`
	FollowUpComment string   `json:"follow_up_comment,omitempty"`
}

// Score holds the five judged dimensions plus an overall value in [0,10].
type Score struct {
	Hook         float64 `json:"hook"`
	Authenticity float64 `json:"authenticity"`
	Relevance    float64 `json:"relevance"`
	Subtlety     float64 `json:"subtlety"`
	Readability  float64 `json:"readability"`
	Overall      float64 `json:"overall"`
	Rater        Rater   `json:"rater"`
	Reasoning    string  `json:"reasoning,omitempty"`
}
