package models

import "time"

// TimeEntry represents one tracked block of working time. Entries are
// owned by the user who tracked them; the "timesheets.tracker_all"
// scope permission widens visibility to every user's entries, while
// the base tracker permissions only ever cover one's own.
type TimeEntry struct {
	// ID is the unique identifier for the time entry.
	ID uint64 `gorm:"primaryKey"`
	// UserID is the owner of the entry.
	UserID uint64 `gorm:"not null;index"`
	// User is the owning user (loaded via foreign key).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Project is the free-form project label the time was booked on.
	Project string `gorm:"size:150"`
	// Description is an optional note on the work performed.
	Description string `gorm:"size:255"`
	// StartedAt is when the tracked block began.
	StartedAt time.Time `gorm:"not null"`
	// EndedAt is when the tracked block ended; zero while running.
	EndedAt time.Time
	// CreatedAt is the timestamp when the entry was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the entry was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the TimeEntry model.
// This overrides GORM's default pluralized table naming.
func (TimeEntry) TableName() string {
	return "time_entries"
}
