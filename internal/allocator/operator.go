package allocator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"livesale-backend/internal/events"
	"livesale-backend/internal/idempotency"
	"livesale-backend/internal/model"
	"livesale-backend/internal/store"
)

// ManualActorPrefix marks actor ids of claims awarded by an operator.
const ManualActorPrefix = "manual:"

// ReleaseRequest ends a claim on behalf of an operator.
type ReleaseRequest struct {
	ClaimID int64  `json:"-" validate:"required"`
	Note    string `json:"note" validate:"max=512"`
}

// AwardRequest gives one unit of a slot to a handle with no underlying comment.
type AwardRequest struct {
	SessionID  int64  `json:"-" validate:"required"`
	SlotNumber string `json:"-" validate:"required,max=64"`
	Handle     string `json:"handle" validate:"required,max=120"`
	Note       string `json:"note" validate:"max=512"`
}

// Release ends a winner, waitlist or unmatched claim regardless of who holds it. A released
// winner's unit passes to the head of the waitlist.
func (a *Allocator) Release(ctx context.Context, req ReleaseRequest) (res Result, err error) {
	ctx, span := a.startSpan(ctx, "allocator.Release", attribute.Int64("claim.id", req.ClaimID))
	defer func() { endSpan(span, res.Outcome, err) }()

	if err := a.validateInput(req); err != nil {
		return Result{}, err
	}

	found, err := a.store.GetClaim(ctx, req.ClaimID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Outcome: OutcomeClaimNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("release claim: %w", err)
	}

	now := a.now().UTC()
	var pending []events.Event
	err = a.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockSession(found.SessionID, false); err != nil {
			return err
		}
		slot, err := tx.LockSlot(found.SessionID, found.SlotNumber)
		if err != nil {
			return err
		}
		c, err := tx.LockClaim(found.ID)
		if err != nil {
			return err
		}

		if c.Status.Terminal() {
			res = Result{Outcome: OutcomeAlreadyReleased, ClaimID: c.ID, SlotNumber: c.SlotNumber}
			return nil
		}

		c.OperatorAction = true
		c.Note = req.Note
		promoted, evs, err := a.withdraw(tx, slot, c, model.ClaimStatusReleased, now)
		if err != nil {
			return err
		}
		pending = evs
		res = Result{Outcome: OutcomeReleased, ClaimID: c.ID, SlotNumber: c.SlotNumber, Promoted: promoted}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return Result{Outcome: OutcomeClaimNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("release claim: %w", err)
	}

	a.publish(ctx, pending)
	return res, nil
}

// ManualAward inserts an operator winner claim for req.Handle if the slot has a unit left.
func (a *Allocator) ManualAward(ctx context.Context, req AwardRequest) (res Result, err error) {
	ctx, span := a.startSpan(ctx, "allocator.ManualAward",
		attribute.Int64("session.id", req.SessionID),
		attribute.String("slot.number", req.SlotNumber))
	defer func() { endSpan(span, res.Outcome, err) }()

	if err := a.validateInput(req); err != nil {
		return Result{}, err
	}

	now := a.now().UTC()
	var pending []events.Event
	err = a.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := tx.LockSession(req.SessionID, false)
		if err != nil {
			return err
		}
		slot, err := tx.LockSlot(req.SessionID, req.SlotNumber)
		if err != nil {
			return err
		}
		if slot == nil {
			res = Result{Outcome: OutcomeItemNotFound, SlotNumber: req.SlotNumber}
			return nil
		}
		if slot.Available() <= 0 {
			res = Result{Outcome: OutcomeNoQuantityAvailable, SlotNumber: req.SlotNumber}
			return nil
		}

		actorID := ManualActorPrefix + req.Handle
		held, err := tx.FindActorClaim(req.SessionID, req.SlotNumber, actorID,
			model.ClaimStatusWinner, model.ClaimStatusWaitlist, model.ClaimStatusUnmatched)
		if err != nil {
			return err
		}
		if held != nil {
			res = Result{Outcome: OutcomeDuplicateUser, ClaimID: held.ID, SlotNumber: req.SlotNumber}
			return nil
		}

		c := &model.Claim{
			SessionID:      req.SessionID,
			SlotNumber:     req.SlotNumber,
			Platform:       sess.Platform,
			ActorID:        actorID,
			ActorHandle:    req.Handle,
			Status:         model.ClaimStatusWinner,
			IdempotencyKey: idempotency.NewOperatorKey(),
			OperatorAction: true,
			Note:           req.Note,
			ArrivedAt:      now,
		}
		if err := tx.CreateClaim(c); err != nil {
			return err
		}

		slot.SetClaimed(slot.ClaimedCount + 1)
		if err := tx.SaveSlotCount(slot); err != nil {
			return err
		}

		pending = []events.Event{claimCreated(c, now), slotUpdated(slot, now)}
		res = Result{Outcome: OutcomeWinner, ClaimID: c.ID, SlotNumber: req.SlotNumber}
		return nil
	})

	switch {
	case errors.Is(err, store.ErrDuplicateActiveClaim):
		return Result{Outcome: OutcomeDuplicateUser, SlotNumber: req.SlotNumber}, nil
	case errors.Is(err, store.ErrNotFound):
		return Result{}, ErrSessionNotFound
	case err != nil:
		return Result{}, fmt.Errorf("manual award: %w", err)
	}

	a.publish(ctx, pending)
	return res, nil
}
