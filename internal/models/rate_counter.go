package models

import "time"

// RateCounter is a fixed-window request counter shared by every server instance.
type RateCounter struct {
	Bucket    string    `gorm:"primaryKey;type:varchar(255)"`
	Count     int       `gorm:"not null;default:0"`
	ExpiresAt time.Time `gorm:"index;not null"`
}
