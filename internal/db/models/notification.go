package models

import "time"

// Notification is an in-app message shown to a single user, e.g. a
// provisioning role change or an invoice awaiting approval.
type Notification struct {
	// ID is the unique identifier for the notification.
	ID uint64 `gorm:"primaryKey"`
	// UserID is the recipient.
	UserID uint64 `gorm:"not null;index"`
	// User is the receiving user (loaded via foreign key).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Title is the short headline.
	Title string `gorm:"size:150;not null"`
	// Body is the message text.
	Body string `gorm:"size:1000"`
	// ReadAt is when the user opened the notification; nil while unread.
	ReadAt *time.Time
	// CreatedAt is the timestamp when the notification was created (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the Notification model.
// This overrides GORM's default pluralized table naming.
func (Notification) TableName() string {
	return "notifications"
}
