package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"livesale-backend/internal/events"
	"livesale-backend/internal/model"
	"livesale-backend/internal/store"
)

// RegisterSlotRequest declares new inventory in a session.
type RegisterSlotRequest struct {
	SessionID int64  `json:"-" validate:"required"`
	Number    string `json:"number" validate:"required,max=64"`
	Title     string `json:"title" validate:"max=256"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// RegisterSlot creates a slot and hands its units to any claims that arrived before it
// existed. The session row is held exclusively so no unmatched claim for the number can
// commit between the insert and the walk.
func (a *Allocator) RegisterSlot(ctx context.Context, req RegisterSlotRequest) (res BackfillResult, err error) {
	req.Number = strings.TrimSpace(req.Number)
	ctx, span := a.startSpan(ctx, "allocator.Backfill",
		attribute.Int64("session.id", req.SessionID),
		attribute.String("slot.number", req.Number))
	defer func() { endSpan(span, res.Outcome, err) }()

	if err := a.validateInput(req); err != nil {
		return BackfillResult{}, err
	}

	now := a.now().UTC()
	var pending []events.Event
	err = a.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockSession(req.SessionID, true); err != nil {
			return err
		}

		slot := &model.Slot{
			SessionID:     req.SessionID,
			Number:        req.Number,
			Title:         req.Title,
			TotalQuantity: req.Quantity,
		}
		slot.SetClaimed(0)
		if err := tx.CreateSlot(slot); err != nil {
			return err
		}

		resolved, evs, err := a.resolve(tx, slot, now)
		res, pending = resolved, evs
		return err
	})

	switch {
	case errors.Is(err, store.ErrSlotExists):
		return BackfillResult{}, ErrSlotExists
	case errors.Is(err, store.ErrNotFound):
		return BackfillResult{}, ErrSessionNotFound
	case err != nil:
		return BackfillResult{}, fmt.Errorf("register slot: %w", err)
	}

	a.publish(ctx, pending)
	return res, nil
}

// ResolveUnmatched runs the backfill walk on an existing slot.
func (a *Allocator) ResolveUnmatched(ctx context.Context, sessionID int64, number string) (res BackfillResult, err error) {
	ctx, span := a.startSpan(ctx, "allocator.Backfill",
		attribute.Int64("session.id", sessionID),
		attribute.String("slot.number", number))
	defer func() { endSpan(span, res.Outcome, err) }()

	now := a.now().UTC()
	var pending []events.Event
	err = a.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockSession(sessionID, true); err != nil {
			return err
		}
		slot, err := tx.LockSlot(sessionID, number)
		if err != nil {
			return err
		}
		if slot == nil {
			res = BackfillResult{Outcome: OutcomeItemNotFound}
			return nil
		}

		resolved, evs, err := a.resolve(tx, slot, now)
		res, pending = resolved, evs
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return BackfillResult{}, ErrSessionNotFound
	}
	if err != nil {
		return BackfillResult{}, fmt.Errorf("resolve unmatched: %w", err)
	}

	a.publish(ctx, pending)
	return res, nil
}

// resolve walks unmatched claims in arrival order, filling free units first and then the
// waitlist after the current tail. The slot count is written once at the end.
func (a *Allocator) resolve(tx store.Tx, slot *model.Slot, now time.Time) (BackfillResult, []events.Event, error) {
	res := BackfillResult{Outcome: OutcomeResolved, Slot: slot, Winners: []int64{}, Waitlisted: []int64{}}

	pendingClaims, err := tx.ListUnmatched(slot.SessionID, slot.Number)
	if err != nil {
		return BackfillResult{}, nil, err
	}
	if len(pendingClaims) == 0 {
		return res, nil, nil
	}

	tail, err := tx.MaxWaitlistPosition(slot.SessionID, slot.Number)
	if err != nil {
		return BackfillResult{}, nil, err
	}

	claimed := slot.ClaimedCount
	var evs []events.Event
	for i := range pendingClaims {
		c := &pendingClaims[i]
		if claimed < slot.TotalQuantity {
			c.Status = model.ClaimStatusWinner
			claimed++
			res.Winners = append(res.Winners, c.ID)
		} else {
			tail++
			pos := tail
			c.Status = model.ClaimStatusWaitlist
			c.WaitlistPosition = &pos
			res.Waitlisted = append(res.Waitlisted, c.ID)
		}
		if err := tx.SaveClaim(c); err != nil {
			return BackfillResult{}, nil, err
		}
		evs = append(evs, claimCreated(c, now))
	}

	if claimed != slot.ClaimedCount {
		slot.SetClaimed(claimed)
		if err := tx.SaveSlotCount(slot); err != nil {
			return BackfillResult{}, nil, err
		}
		evs = append(evs, slotUpdated(slot, now))
	}

	evs = append(evs, events.New(events.TypeBackfillResolved, slot.SessionID, now, events.BackfillResolved{
		SlotNumber: slot.Number,
		Winners:    res.Winners,
		Waitlisted: res.Waitlisted,
	}))
	return res, evs, nil
}
