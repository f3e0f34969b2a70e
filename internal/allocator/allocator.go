// Package allocator turns parsed comment intents into slot awards, waitlist entries and
// releases. Every mutation runs in one store transaction under the slot row lock; there is
// no in-process locking.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"livesale-backend/internal/events"
	"livesale-backend/internal/model"
	"livesale-backend/internal/store"
)

var (
	// ErrInvalidInput is returned, wrapped, for requests rejected before any transaction.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionNotFound is returned when the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSlotExists is returned by RegisterSlot when the number is already registered.
	ErrSlotExists = store.ErrSlotExists
)

const defaultKeywordTTL = 30 * time.Second

// Allocator is safe for concurrent use.
type Allocator struct {
	store    store.Store
	events   events.Publisher
	keywords *cache.Cache
	validate *validator.Validate
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates an allocator. Session keywords are cached for keywordTTL; a nil publisher
// discards events.
func New(s store.Store, pub events.Publisher, keywordTTL time.Duration) *Allocator {
	if pub == nil {
		pub = events.Nop{}
	}
	if keywordTTL <= 0 {
		keywordTTL = defaultKeywordTTL
	}
	return &Allocator{
		store:    s,
		events:   pub,
		keywords: cache.New(keywordTTL, 2*keywordTTL),
		validate: validator.New(),
		tracer:   otel.Tracer("livesale-backend/internal/allocator"),
		now:      time.Now,
	}
}

type sessionKeywords struct {
	claim string
	pass  string
}

// keywordsFor returns the claim and pass words of a session. Status is never cached; it is
// re-read under the session lock.
func (a *Allocator) keywordsFor(ctx context.Context, sessionID int64) (sessionKeywords, error) {
	key := strconv.FormatInt(sessionID, 10)
	if v, ok := a.keywords.Get(key); ok {
		return v.(sessionKeywords), nil
	}

	sess, err := a.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return sessionKeywords{}, ErrSessionNotFound
	}
	if err != nil {
		return sessionKeywords{}, err
	}

	kw := sessionKeywords{claim: sess.ClaimWord, pass: sess.PassWord}
	a.keywords.SetDefault(key, kw)
	return kw, nil
}

// InvalidateSession drops cached keywords after an operator edits a session.
func (a *Allocator) InvalidateSession(sessionID int64) {
	a.keywords.Delete(strconv.FormatInt(sessionID, 10))
}

func (a *Allocator) validateInput(v any) error {
	if err := a.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (a *Allocator) publish(ctx context.Context, evs []events.Event) {
	for _, e := range evs {
		a.events.Publish(ctx, e)
	}
}

func (a *Allocator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, outcome Outcome, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String("allocator.outcome", string(outcome)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func slotUpdated(slot *model.Slot, at time.Time) events.Event {
	return events.New(events.TypeSlotUpdated, slot.SessionID, at, events.SlotUpdated{
		SlotNumber:    slot.Number,
		ClaimedCount:  slot.ClaimedCount,
		TotalQuantity: slot.TotalQuantity,
		Status:        string(slot.Status),
	})
}

func claimCreated(c *model.Claim, at time.Time) events.Event {
	return events.New(events.TypeClaimCreated, c.SessionID, at, events.ClaimCreated{
		ClaimID:          c.ID,
		SlotNumber:       c.SlotNumber,
		ActorID:          c.ActorID,
		ActorHandle:      c.ActorHandle,
		Status:           string(c.Status),
		WaitlistPosition: c.WaitlistPosition,
		OperatorAction:   c.OperatorAction,
	})
}
