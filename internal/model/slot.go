package model

import "time"

// SlotStatus is derived from a slot's claimed count and total quantity.
type SlotStatus string

const (
	SlotStatusUnclaimed SlotStatus = "unclaimed"
	SlotStatusPartial   SlotStatus = "partial"
	SlotStatusSoldOut   SlotStatus = "sold_out"
)

// SlotStatusFor returns the status implied by claimed out of total.
func SlotStatusFor(claimed, total int) SlotStatus {
	switch {
	case claimed <= 0:
		return SlotStatusUnclaimed
	case claimed < total:
		return SlotStatusPartial
	default:
		return SlotStatusSoldOut
	}
}

// Slot is a numbered unit of inventory within a session.
type Slot struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	SessionID     int64      `gorm:"not null;uniqueIndex:idx_slots_session_number,priority:1" json:"sessionId"`
	Number        string     `gorm:"size:64;not null;uniqueIndex:idx_slots_session_number,priority:2" json:"number"`
	Title         string     `gorm:"size:256" json:"title"`
	TotalQuantity int        `gorm:"not null" json:"totalQuantity"`
	ClaimedCount  int        `gorm:"not null;default:0" json:"claimedCount"`
	Status        SlotStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt     time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updatedAt"`
}

// Available is the number of units not yet held by a winner.
func (s *Slot) Available() int {
	return s.TotalQuantity - s.ClaimedCount
}

// SetClaimed updates the count and keeps Status consistent with it.
func (s *Slot) SetClaimed(n int) {
	s.ClaimedCount = n
	s.Status = SlotStatusFor(n, s.TotalQuantity)
}
