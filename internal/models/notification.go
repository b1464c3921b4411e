package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification categories raised by the academic domain handlers.
const (
	CategoryLeave      = "Leave"
	CategoryNotice     = "Notice"
	CategoryMessage    = "Message"
	CategoryEnrollment = "Enrollment"
	CategorySystem     = "System"
)

// Notification is a recipient-owned inbox entry.
type Notification struct {
	BaseModel `bson:",inline"`

	RecipientID string         `gorm:"type:varchar(36);not null;index:idx_notifications_recipient_read,priority:1" json:"recipient_id" bson:"recipient_id"`
	Category    string         `gorm:"type:varchar(64);not null" json:"category" bson:"category"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title" bson:"title"`
	Body        string         `gorm:"type:text" json:"body" bson:"body"`
	Link        string         `gorm:"type:text" json:"link" bson:"link"`
	Metadata    datatypes.JSON `json:"metadata,omitempty" bson:"metadata,omitempty"`

	Read   bool       `gorm:"column:is_read;not null;default:false;index:idx_notifications_recipient_read,priority:2" json:"read" bson:"read"`
	ReadAt *time.Time `json:"read_at,omitempty" bson:"read_at,omitempty"`
}
