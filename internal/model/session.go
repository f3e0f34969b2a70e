package model

import "time"

// SessionStatus is the lifecycle state of a live sale.
type SessionStatus string

const (
	SessionStatusDraft  SessionStatus = "draft"
	SessionStatusActive SessionStatus = "active"
	SessionStatusPaused SessionStatus = "paused"
	SessionStatusEnded  SessionStatus = "ended"
)

// Valid reports whether s is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusDraft, SessionStatusActive, SessionStatusPaused, SessionStatusEnded:
		return true
	}
	return false
}

// Session represents a live sales event. All slots and claims are scoped to one.
type Session struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	Title     string        `gorm:"size:256;not null" json:"title"`
	Platform  string        `gorm:"size:32;not null" json:"platform"`
	ClaimWord string        `gorm:"size:32;not null" json:"claimWord"`
	PassWord  string        `gorm:"size:32;not null" json:"passWord"`
	Status    SessionStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"not null" json:"updatedAt"`
}
