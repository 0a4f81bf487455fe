package models

import "time"

// RateLimitCounter is one fixed window of attempts for an "action|ip" bucket.
type RateLimitCounter struct {
	Bucket      string    `gorm:"primaryKey;size:200"`
	WindowStart time.Time `gorm:"not null"`
	Count       int       `gorm:"not null;default:0"`
}
