package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
	TypeCommentReceived  Type = "comment.received"
	TypeClaimCreated     Type = "claim.created"
	TypeClaimReleased    Type = "claim.released"
	TypeSlotUpdated      Type = "slot.updated"
	TypeBackfillResolved Type = "backfill.resolved"
)

// Event is one domain event. Data holds one of the payload types below.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	SessionID int64     `json:"sessionId"`
	At        time.Time `json:"at"`
	Data      any       `json:"data"`
}

// New stamps a payload with an id and time.
func New(t Type, sessionID int64, at time.Time, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		At:        at,
		Data:      data,
	}
}

// CommentReceived is published for every newly stored comment.
type CommentReceived struct {
	CommentID   string `json:"commentId"`
	ActorID     string `json:"actorId"`
	ActorHandle string `json:"actorHandle,omitempty"`
	Text        string `json:"text"`
	Parsed      bool   `json:"parsed"`
}

// ClaimCreated is published for every persisted claim, including manual awards.
type ClaimCreated struct {
	ClaimID          int64  `json:"claimId"`
	SlotNumber       string `json:"slotNumber"`
	ActorID          string `json:"actorId"`
	ActorHandle      string `json:"actorHandle,omitempty"`
	Status           string `json:"status"`
	WaitlistPosition *int   `json:"waitlistPosition,omitempty"`
	OperatorAction   bool   `json:"operatorAction,omitempty"`
}

// Promotion identifies the waitlisted claim that became a winner.
type Promotion struct {
	ClaimID     int64  `json:"claimId"`
	ActorID     string `json:"actorId"`
	ActorHandle string `json:"actorHandle,omitempty"`
}

// ClaimReleased is published when a claim is passed or released.
type ClaimReleased struct {
	ClaimID    int64      `json:"claimId"`
	SlotNumber string     `json:"slotNumber"`
	ActorID    string     `json:"actorId"`
	Status     string     `json:"status"`
	Note       string     `json:"note,omitempty"`
	Promoted   *Promotion `json:"promoted,omitempty"`
}

// SlotUpdated carries the new count and status of a slot.
type SlotUpdated struct {
	SlotNumber    string `json:"slotNumber"`
	ClaimedCount  int    `json:"claimedCount"`
	TotalQuantity int    `json:"totalQuantity"`
	Status        string `json:"status"`
}

// BackfillResolved summarizes one backfill walk.
type BackfillResolved struct {
	SlotNumber string  `json:"slotNumber"`
	Winners    []int64 `json:"winners"`
	Waitlisted []int64 `json:"waitlisted"`
}

// Publisher accepts events for delivery. Publish never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
