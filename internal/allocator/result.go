package allocator

import "livesale-backend/internal/model"

// Outcome tags every allocator result. Outcomes are expected business states, not faults.
type Outcome string

const (
	OutcomeNotParsed        Outcome = "not_parsed"
	OutcomeDuplicateComment Outcome = "duplicate_comment"
	OutcomeShowNotActive    Outcome = "show_not_active"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeDuplicateUser    Outcome = "duplicate_user"
	OutcomeUnmatched        Outcome = "unmatched"
	OutcomeWinner           Outcome = "winner"
	OutcomeWaitlist         Outcome = "waitlist"
	OutcomePassed           Outcome = "passed"
	OutcomeNoActiveClaim    Outcome = "no_active_claim"

	OutcomeClaimNotFound       Outcome = "claim_not_found"
	OutcomeAlreadyReleased     Outcome = "already_released"
	OutcomeReleased            Outcome = "released"
	OutcomeItemNotFound        Outcome = "item_not_found"
	OutcomeNoQuantityAvailable Outcome = "no_quantity_available"

	OutcomeResolved Outcome = "resolved"
)

// Promotion identifies the waitlisted claim that became a winner after a pass or release.
type Promotion struct {
	ClaimID     int64  `json:"claimId"`
	ActorID     string `json:"actorId"`
	ActorHandle string `json:"actorHandle,omitempty"`
}

// Result is the answer to one comment, release or award. Which fields are set depends on
// Outcome:
//
//	winner, unmatched, duplicate_user  ClaimID, SlotNumber
//	waitlist                           ClaimID, SlotNumber, WaitlistPosition
//	duplicate                          ClaimID (when the earlier claim was seen), SlotNumber
//	passed, released                   ClaimID, SlotNumber, Promoted (nil if nobody was waiting)
//	not_parsed                         CommentID
type Result struct {
	Outcome          Outcome    `json:"outcome"`
	CommentID        string     `json:"commentId,omitempty"`
	ClaimID          int64      `json:"claimId,omitempty"`
	SlotNumber       string     `json:"slotNumber,omitempty"`
	WaitlistPosition int        `json:"waitlistPosition,omitempty"`
	Promoted         *Promotion `json:"promoted,omitempty"`
}

// BackfillResult reports one backfill walk. Winners and Waitlisted hold claim ids in the
// order they were assigned.
type BackfillResult struct {
	Outcome    Outcome     `json:"outcome"`
	Slot       *model.Slot `json:"slot,omitempty"`
	Winners    []int64     `json:"winners"`
	Waitlisted []int64     `json:"waitlisted"`
}
