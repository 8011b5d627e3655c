package domain

import "time"

// ItemStatus represents the state of a calendar item.
type ItemStatus string

const (
	ItemStatusDraft     ItemStatus = "draft"
	ItemStatusScheduled ItemStatus = "scheduled"
	ItemStatusPublished ItemStatus = "published"
	ItemStatusFailed    ItemStatus = "failed"
)

// CalendarWeek groups the calendar items planned for one week.
type CalendarWeek struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ProjectID string    `gorm:"type:text;not null;index" json:"project_id"`
	StartDate string    `gorm:"type:text;not null" json:"start_date"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CalendarWeek.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CalendarWeek) TableName() string {
	return "calendar_weeks"
}

// CalendarItem is one committed posting opportunity: a scheduled time plus
// the channel and persona it was assigned during planning.
type CalendarItem struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	WeekID      string     `gorm:"type:text;not null;index" json:"week_id"`
	ProjectID   string     `gorm:"type:text;not null;index" json:"project_id"`
	ChannelID   string     `gorm:"type:text;not null" json:"channel_id"`
	PersonaID   string     `gorm:"type:text;not null" json:"persona_id"`
	TopicID     string     `gorm:"type:text" json:"topic_id"`
	ScheduledAt time.Time  `gorm:"index" json:"scheduled_at"`
	Status      ItemStatus `gorm:"type:text;index;default:draft" json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for CalendarItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CalendarItem) TableName() string {
	return "calendar_items"
}

// Slot is an in-memory planning unit. Slots are not persisted; a slot
// becomes a CalendarItem once channel and persona assignment is final.
type Slot struct {
	Index       int
	ScheduledAt time.Time
	ChannelID   string
	PersonaID   string
	TopicID     string
}
