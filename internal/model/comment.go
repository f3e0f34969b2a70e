package model

import "time"

// Comment is the append-only log of inbound comments.
type Comment struct {
	ID               string    `gorm:"primaryKey;size:36"`
	SessionID        int64     `gorm:"not null;index"`
	Platform         string    `gorm:"size:32;not null;uniqueIndex:idx_comments_source,priority:1"`
	ExternalID       string    `gorm:"size:128;not null;uniqueIndex:idx_comments_source,priority:2"` // Source comment id, or the idempotency key when absent
	LiveID           string    `gorm:"size:128"`
	ActorID          string    `gorm:"size:128;not null"`
	ActorHandle      string    `gorm:"size:128"`
	ActorDisplayName string    `gorm:"size:256"`
	ParentID         string    `gorm:"size:128"`
	RawText          string    `gorm:"type:text;not null"`
	NormalizedText   string    `gorm:"type:text;not null"`
	Parsed           bool      `gorm:"not null"`
	CommentedAt      time.Time `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
}
