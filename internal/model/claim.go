package model

import "time"

// ClaimStatus is the allocation state of a claim.
type ClaimStatus string

const (
	ClaimStatusWinner    ClaimStatus = "winner"
	ClaimStatusWaitlist  ClaimStatus = "waitlist"
	ClaimStatusUnmatched ClaimStatus = "unmatched"
	ClaimStatusReleased  ClaimStatus = "released"
	ClaimStatusPassed    ClaimStatus = "passed"
)

// Active reports whether the claim still holds or awaits a unit.
func (s ClaimStatus) Active() bool {
	return s == ClaimStatusWinner || s == ClaimStatusWaitlist || s == ClaimStatusUnmatched
}

// Terminal reports whether the claim has been withdrawn or released.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimStatusReleased || s == ClaimStatusPassed
}

// Claim is one actor's attempt to win one unit of a slot.
type Claim struct {
	ID               int64       `gorm:"primaryKey" json:"id"`
	SessionID        int64       `gorm:"not null;index:idx_claims_session_slot,priority:1" json:"sessionId"`
	SlotNumber       string      `gorm:"size:64;not null;index:idx_claims_session_slot,priority:2" json:"slotNumber"`
	Platform         string      `gorm:"size:32;not null" json:"platform"`
	ActorID          string      `gorm:"size:128;not null" json:"actorId"`
	ActorHandle      string      `gorm:"size:128" json:"actorHandle"`
	ActorDisplayName string      `gorm:"size:256" json:"actorDisplayName"`
	CommentID        *string     `gorm:"size:36" json:"commentId,omitempty"`
	Status           ClaimStatus `gorm:"size:16;not null;index" json:"status"`
	WaitlistPosition *int        `json:"waitlistPosition,omitempty"`
	IdempotencyKey   string      `gorm:"size:128;not null;uniqueIndex:idx_claims_idempotency_key" json:"idempotencyKey"`
	OperatorAction   bool        `gorm:"not null;default:false" json:"operatorAction"`
	Note             string      `gorm:"size:512" json:"note,omitempty"`
	ArrivedAt        time.Time   `gorm:"not null" json:"arrivedAt"`
	ReleasedAt       *time.Time  `json:"releasedAt,omitempty"`
	CreatedAt        time.Time   `gorm:"not null" json:"createdAt"`
	UpdatedAt        time.Time   `gorm:"not null" json:"updatedAt"`
}
