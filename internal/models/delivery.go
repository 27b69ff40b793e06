package models

import (
	"time"

	"gorm.io/gorm"
)

// StreamDelivery records one attempt to push an approved submission to a
// feed's stream output. Delivery is fire-and-forget relative to moderation:
// a failed row never unwinds the approval that triggered it.
type StreamDelivery struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubmissionID uint   `gorm:"not null;index" json:"submission_id"`
	FeedID       string `gorm:"not null;size:100;index" json:"feed_id"`
	Status       string `gorm:"size:50;default:'pending'" json:"status"`
	Error        string `gorm:"type:text" json:"error"`

	DeliveredAt *time.Time     `json:"delivered_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
