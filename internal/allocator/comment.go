package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"livesale-backend/internal/events"
	"livesale-backend/internal/idempotency"
	"livesale-backend/internal/model"
	"livesale-backend/internal/parse"
	"livesale-backend/internal/store"
)

// CommentEnvelope is one inbound comment as delivered by an ingestion source. A zero
// Timestamp is replaced with the processing time.
type CommentEnvelope struct {
	Platform         string    `json:"platform" validate:"required,max=32"`
	LiveID           string    `json:"liveSessionId" validate:"max=128"`
	SourceCommentID  string    `json:"sourceCommentId" validate:"max=128"`
	ActorID          string    `json:"actorId" validate:"required,max=128"`
	ActorHandle      string    `json:"actorHandle" validate:"max=128"`
	ActorDisplayName string    `json:"actorDisplayName" validate:"max=256"`
	RawText          string    `json:"rawText" validate:"max=4000"`
	Timestamp        time.Time `json:"timestamp"`
	ParentCommentID  string    `json:"parentCommentId,omitempty" validate:"max=128"`
}

// ProcessComment records one comment and applies its claim or pass intent to the session.
// The comment row, the claim row and the slot count change commit together or not at all,
// so a caller may retry a failed call with the same envelope.
func (a *Allocator) ProcessComment(ctx context.Context, sessionID int64, env CommentEnvelope) (res Result, err error) {
	ctx, span := a.startSpan(ctx, "allocator.ProcessComment",
		attribute.Int64("session.id", sessionID),
		attribute.String("comment.platform", env.Platform))
	defer func() { endSpan(span, res.Outcome, err) }()

	if err := a.validateInput(env); err != nil {
		return Result{}, err
	}

	kw, err := a.keywordsFor(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	now := a.now().UTC()
	if env.Timestamp.IsZero() {
		env.Timestamp = now
	}
	env.Timestamp = env.Timestamp.UTC()

	normalized, intent := parse.ParseComment(env.RawText, kw.claim, kw.pass)
	key := idempotency.Key(idempotency.Source{
		Platform:       env.Platform,
		CommentID:      env.SourceCommentID,
		LiveID:         env.LiveID,
		ActorID:        env.ActorID,
		NormalizedText: normalized,
		Timestamp:      env.Timestamp,
	})

	var number string
	if intent != nil {
		number = intent.SlotNumber
	}

	externalID := env.SourceCommentID
	if externalID == "" {
		externalID = key
	}
	comment := &model.Comment{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Platform:         env.Platform,
		ExternalID:       externalID,
		LiveID:           env.LiveID,
		ActorID:          env.ActorID,
		ActorHandle:      env.ActorHandle,
		ActorDisplayName: env.ActorDisplayName,
		ParentID:         env.ParentCommentID,
		RawText:          env.RawText,
		NormalizedText:   normalized,
		Parsed:           intent != nil,
		CommentedAt:      env.Timestamp,
	}

	var pending []events.Event
	err = a.store.InTx(ctx, func(tx store.Tx) error {
		pending = pending[:0]

		sess, err := tx.LockSession(sessionID, false)
		if err != nil {
			return err
		}

		inserted, err := tx.InsertComment(comment)
		if err != nil {
			return err
		}
		if !inserted {
			res = Result{Outcome: OutcomeDuplicateComment}
			return nil
		}
		pending = append(pending, events.New(events.TypeCommentReceived, sessionID, now, events.CommentReceived{
			CommentID:   comment.ID,
			ActorID:     comment.ActorID,
			ActorHandle: comment.ActorHandle,
			Text:        comment.RawText,
			Parsed:      comment.Parsed,
		}))

		if intent == nil {
			res = Result{Outcome: OutcomeNotParsed, CommentID: comment.ID}
			return nil
		}
		if sess.Status != model.SessionStatusActive {
			res = Result{Outcome: OutcomeShowNotActive, SlotNumber: number}
			return nil
		}

		var evs []events.Event
		if intent.Kind == parse.IntentPass {
			res, evs, err = a.pass(tx, sess, number, env.ActorID, now)
		} else {
			res, evs, err = a.claim(tx, sess, number, key, comment, now)
		}
		pending = append(pending, evs...)
		return err
	})

	switch {
	case errors.Is(err, store.ErrDuplicateIdempotencyKey):
		return Result{Outcome: OutcomeDuplicate, SlotNumber: number}, nil
	case errors.Is(err, store.ErrDuplicateActiveClaim):
		return Result{Outcome: OutcomeDuplicateUser, SlotNumber: number}, nil
	case errors.Is(err, store.ErrNotFound):
		return Result{}, ErrSessionNotFound
	case err != nil:
		return Result{}, fmt.Errorf("process comment: %w", err)
	}

	a.publish(ctx, pending)
	return res, nil
}

// claim runs the claim state machine for one parsed intent.
func (a *Allocator) claim(tx store.Tx, sess *model.Session, number, key string, comment *model.Comment, now time.Time) (Result, []events.Event, error) {
	slot, err := tx.LockSlot(sess.ID, number)
	if err != nil {
		return Result{}, nil, err
	}

	prior, err := tx.FindClaimByKey(key)
	if err != nil {
		return Result{}, nil, err
	}
	if prior != nil {
		return Result{Outcome: OutcomeDuplicate, ClaimID: prior.ID, SlotNumber: number}, nil, nil
	}

	held, err := tx.FindActorClaim(sess.ID, number, comment.ActorID,
		model.ClaimStatusWinner, model.ClaimStatusWaitlist, model.ClaimStatusUnmatched)
	if err != nil {
		return Result{}, nil, err
	}
	if held != nil {
		return Result{Outcome: OutcomeDuplicateUser, ClaimID: held.ID, SlotNumber: number}, nil, nil
	}

	c := &model.Claim{
		SessionID:        sess.ID,
		SlotNumber:       number,
		Platform:         comment.Platform,
		ActorID:          comment.ActorID,
		ActorHandle:      comment.ActorHandle,
		ActorDisplayName: comment.ActorDisplayName,
		CommentID:        &comment.ID,
		IdempotencyKey:   key,
		ArrivedAt:        comment.CommentedAt,
	}

	var evs []events.Event
	res := Result{SlotNumber: number}
	switch {
	case slot == nil:
		c.Status = model.ClaimStatusUnmatched
		res.Outcome = OutcomeUnmatched
	case slot.Available() > 0:
		c.Status = model.ClaimStatusWinner
		res.Outcome = OutcomeWinner
	default:
		maxPos, err := tx.MaxWaitlistPosition(sess.ID, number)
		if err != nil {
			return Result{}, nil, err
		}
		pos := maxPos + 1
		c.Status = model.ClaimStatusWaitlist
		c.WaitlistPosition = &pos
		res.Outcome = OutcomeWaitlist
		res.WaitlistPosition = pos
	}

	if err := tx.CreateClaim(c); err != nil {
		return Result{}, nil, err
	}
	res.ClaimID = c.ID
	evs = append(evs, claimCreated(c, now))

	if c.Status == model.ClaimStatusWinner {
		slot.SetClaimed(slot.ClaimedCount + 1)
		if err := tx.SaveSlotCount(slot); err != nil {
			return Result{}, nil, err
		}
		evs = append(evs, slotUpdated(slot, now))
	}
	return res, evs, nil
}

// pass withdraws the actor's own winner or waitlist claim on the slot.
func (a *Allocator) pass(tx store.Tx, sess *model.Session, number, actorID string, now time.Time) (Result, []events.Event, error) {
	slot, err := tx.LockSlot(sess.ID, number)
	if err != nil {
		return Result{}, nil, err
	}

	held, err := tx.FindActorClaim(sess.ID, number, actorID, model.ClaimStatusWinner, model.ClaimStatusWaitlist)
	if err != nil {
		return Result{}, nil, err
	}
	if held == nil {
		return Result{Outcome: OutcomeNoActiveClaim, SlotNumber: number}, nil, nil
	}

	promoted, evs, err := a.withdraw(tx, slot, held, model.ClaimStatusPassed, now)
	if err != nil {
		return Result{}, nil, err
	}
	return Result{Outcome: OutcomePassed, ClaimID: held.ID, SlotNumber: number, Promoted: promoted}, evs, nil
}

// withdraw moves c to a terminal status. A withdrawn winner frees one unit, which goes to
// the lowest waitlist position if anyone is waiting. slot must be locked by tx and may be
// nil only when c never held a unit.
func (a *Allocator) withdraw(tx store.Tx, slot *model.Slot, c *model.Claim, to model.ClaimStatus, now time.Time) (*Promotion, []events.Event, error) {
	wasWinner := c.Status == model.ClaimStatusWinner

	c.Status = to
	c.WaitlistPosition = nil
	c.ReleasedAt = &now
	if err := tx.SaveClaim(c); err != nil {
		return nil, nil, err
	}

	released := events.ClaimReleased{
		ClaimID:    c.ID,
		SlotNumber: c.SlotNumber,
		ActorID:    c.ActorID,
		Status:     string(to),
		Note:       c.Note,
	}
	if !wasWinner || slot == nil {
		return nil, []events.Event{events.New(events.TypeClaimReleased, c.SessionID, now, released)}, nil
	}

	count := slot.ClaimedCount - 1
	if count < 0 {
		count = 0
	}

	var promotion *Promotion
	next, err := tx.FirstWaitlisted(slot.SessionID, slot.Number)
	if err != nil {
		return nil, nil, err
	}
	if next != nil {
		next.Status = model.ClaimStatusWinner
		next.WaitlistPosition = nil
		if err := tx.SaveClaim(next); err != nil {
			return nil, nil, err
		}
		count++
		promotion = &Promotion{ClaimID: next.ID, ActorID: next.ActorID, ActorHandle: next.ActorHandle}
		released.Promoted = &events.Promotion{ClaimID: next.ID, ActorID: next.ActorID, ActorHandle: next.ActorHandle}
	}

	slot.SetClaimed(count)
	if err := tx.SaveSlotCount(slot); err != nil {
		return nil, nil, err
	}

	return promotion, []events.Event{
		events.New(events.TypeClaimReleased, c.SessionID, now, released),
		slotUpdated(slot, now),
	}, nil
}
