package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"livesale-backend/internal/db"
	"livesale-backend/internal/events"
	"livesale-backend/internal/idempotency"
	"livesale-backend/internal/model"
	"livesale-backend/internal/store"
)

var t0 = time.Date(2026, 5, 14, 19, 0, 0, 0, time.UTC)

type fixture struct {
	alloc   *Allocator
	store   store.Store
	events  *events.Recorder
	session *model.Session
}

func newFixture(t *testing.T, status model.SessionStatus) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	s := store.NewGormStore(gormDB)
	sess := &model.Session{Title: "Thursday drop", Platform: "tiktok", ClaimWord: "sold", PassWord: "pass", Status: status}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	rec := &events.Recorder{}
	a := New(s, rec, time.Minute)
	a.now = func() time.Time { return t0.Add(time.Hour) }
	return &fixture{alloc: a, store: s, events: rec, session: sess}
}

func (f *fixture) registerSlot(t *testing.T, number string, qty int) BackfillResult {
	t.Helper()
	res, err := f.alloc.RegisterSlot(context.Background(), RegisterSlotRequest{SessionID: f.session.ID, Number: number, Quantity: qty})
	require.NoError(t, err)
	return res
}

func (f *fixture) comment(t *testing.T, sourceID, actor, text string, at time.Time) Result {
	t.Helper()
	res, err := f.alloc.ProcessComment(context.Background(), f.session.ID, envelope(sourceID, actor, text, at))
	require.NoError(t, err)
	return res
}

func (f *fixture) claims(t *testing.T, number string) map[string]model.Claim {
	t.Helper()
	list, err := f.store.ListClaims(context.Background(), f.session.ID, number)
	require.NoError(t, err)
	out := make(map[string]model.Claim, len(list))
	for _, c := range list {
		out[c.ActorID] = c
	}
	return out
}

func (f *fixture) slot(t *testing.T, number string) *model.Slot {
	t.Helper()
	s, err := f.store.GetSlot(context.Background(), f.session.ID, number)
	require.NoError(t, err)
	return s
}

// assertConservation checks that the slot count equals its winners and never exceeds stock.
func (f *fixture) assertConservation(t *testing.T, number string) {
	t.Helper()
	slot := f.slot(t, number)
	winners := 0
	for _, c := range f.claims(t, number) {
		if c.Status == model.ClaimStatusWinner {
			winners++
		}
	}
	assert.Equal(t, winners, slot.ClaimedCount, "claimed_count must equal winner claims")
	assert.LessOrEqual(t, slot.ClaimedCount, slot.TotalQuantity)
	assert.Equal(t, model.SlotStatusFor(slot.ClaimedCount, slot.TotalQuantity), slot.Status)
}

func envelope(sourceID, actor, text string, at time.Time) CommentEnvelope {
	return CommentEnvelope{
		Platform:        "tiktok",
		LiveID:          "live-1",
		SourceCommentID: sourceID,
		ActorID:         actor,
		ActorHandle:     "@" + actor,
		RawText:         text,
		Timestamp:       at,
	}
}

func TestProcessComment_FIFOWaitlist(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 1)

	a := f.comment(t, "c1", "alice", "SOLD 5", t0)
	b := f.comment(t, "c2", "bob", "sold 5!!", t0.Add(time.Second))
	c := f.comment(t, "c3", "carol", "5 sold", t0.Add(2*time.Second))

	assert.Equal(t, OutcomeWinner, a.Outcome)
	assert.Equal(t, OutcomeWaitlist, b.Outcome)
	assert.Equal(t, 1, b.WaitlistPosition)
	assert.Equal(t, OutcomeWaitlist, c.Outcome)
	assert.Equal(t, 2, c.WaitlistPosition)

	slot := f.slot(t, "5")
	assert.Equal(t, 1, slot.ClaimedCount)
	assert.Equal(t, model.SlotStatusSoldOut, slot.Status)
	f.assertConservation(t, "5")
}

func TestProcessComment_PartialThenSoldOut(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "12", 2)

	f.comment(t, "c1", "alice", "sold12", t0)
	assert.Equal(t, model.SlotStatusPartial, f.slot(t, "12").Status)

	f.comment(t, "c2", "bob", "sold 12", t0.Add(time.Second))
	assert.Equal(t, model.SlotStatusSoldOut, f.slot(t, "12").Status)
	f.assertConservation(t, "12")
}

func TestProcessComment_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "7", 1)

	const contenders = 8
	results := make([]Result, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env := envelope(fmt.Sprintf("c%d", i), fmt.Sprintf("actor-%d", i), "sold 7", t0.Add(time.Duration(i)*time.Millisecond))
			res, err := f.alloc.ProcessComment(context.Background(), f.session.ID, env)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	var positions []int
	for _, r := range results {
		switch r.Outcome {
		case OutcomeWinner:
			winners++
		case OutcomeWaitlist:
			positions = append(positions, r.WaitlistPosition)
		default:
			t.Fatalf("unexpected outcome %s", r.Outcome)
		}
	}
	sort.Ints(positions)

	assert.Equal(t, 1, winners)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, positions)
	f.assertConservation(t, "7")
}

func TestProcessComment_ReplaySameSourceComment(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "3", 5)

	first := f.comment(t, "c-42", "alice", "sold 3", t0)
	require.Equal(t, OutcomeWinner, first.Outcome)

	for i := 0; i < 3; i++ {
		again := f.comment(t, "c-42", "alice", "sold 3", t0)
		assert.Equal(t, OutcomeDuplicateComment, again.Outcome)
	}

	comments, err := f.store.ListComments(context.Background(), f.session.ID, 10)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
	assert.Len(t, f.claims(t, "3"), 1)
	assert.Equal(t, 1, f.slot(t, "3").ClaimedCount)
}

func TestProcessComment_FallbackKeyReplay(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "3", 5)

	first := f.comment(t, "", "alice", "sold 3", t0.Add(1200*time.Millisecond))
	require.Equal(t, OutcomeWinner, first.Outcome)

	// Same text from the same actor within the bucket is the same logical comment.
	again := f.comment(t, "", "alice", "Sold 3", t0.Add(4800*time.Millisecond))
	assert.Equal(t, OutcomeDuplicateComment, again.Outcome)
	assert.Len(t, f.claims(t, "3"), 1)
}

func TestProcessComment_DuplicateIdempotencyKey(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "8", 2)
	ctx := context.Background()

	env := envelope("c-9", "alice", "sold 8", t0)
	key := idempotency.Key(idempotency.Source{Platform: env.Platform, CommentID: env.SourceCommentID})

	// A claim from an earlier attempt whose comment row is gone.
	err := f.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateClaim(&model.Claim{
			SessionID:      f.session.ID,
			SlotNumber:     "8",
			Platform:       "tiktok",
			ActorID:        "alice",
			Status:         model.ClaimStatusReleased,
			IdempotencyKey: key,
			ArrivedAt:      t0,
		})
	})
	require.NoError(t, err)

	res, err := f.alloc.ProcessComment(ctx, f.session.ID, env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.NotZero(t, res.ClaimID)
	assert.Len(t, f.claims(t, "8"), 1)
	assert.Equal(t, 0, f.slot(t, "8").ClaimedCount)
}

func TestProcessComment_SelfDedup(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "10", 3)

	first := f.comment(t, "c1", "alice", "sold 10", t0)
	require.Equal(t, OutcomeWinner, first.Outcome)

	second := f.comment(t, "c2", "alice", "sold 10", t0.Add(30*time.Second))
	assert.Equal(t, OutcomeDuplicateUser, second.Outcome)
	assert.Equal(t, first.ClaimID, second.ClaimID)

	assert.Len(t, f.claims(t, "10"), 1)
	assert.Equal(t, 1, f.slot(t, "10").ClaimedCount)

	// The rejected comment is still logged; only the claim is refused.
	comments, err := f.store.ListComments(context.Background(), f.session.ID, 10)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestProcessComment_SelfDedupUnmatched(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)

	assert.Equal(t, OutcomeUnmatched, f.comment(t, "c1", "alice", "sold 44", t0).Outcome)
	assert.Equal(t, OutcomeDuplicateUser, f.comment(t, "c2", "alice", "sold 44", t0.Add(time.Minute)).Outcome)
}

func TestProcessComment_InactiveSession(t *testing.T) {
	for _, status := range []model.SessionStatus{model.SessionStatusDraft, model.SessionStatusPaused, model.SessionStatusEnded} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, status)
			f.registerSlot(t, "5", 1)
			f.events.Reset()

			res := f.comment(t, "c1", "alice", "sold 5", t0)
			assert.Equal(t, OutcomeShowNotActive, res.Outcome)
			assert.Empty(t, f.claims(t, "5"))
			assert.Equal(t, 0, f.slot(t, "5").ClaimedCount)
			assert.Empty(t, f.events.OfType(events.TypeClaimCreated))
		})
	}
}

func TestProcessComment_NotParsed(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)

	res := f.comment(t, "c1", "alice", "love this one 😍", t0)
	assert.Equal(t, OutcomeNotParsed, res.Outcome)
	assert.NotEmpty(t, res.CommentID)

	comments, err := f.store.ListComments(context.Background(), f.session.ID, 10)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.False(t, comments[0].Parsed)
	assert.Equal(t, "love this one", comments[0].NormalizedText)

	received := f.events.OfType(events.TypeCommentReceived)
	require.Len(t, received, 1)
	assert.False(t, received[0].Data.(events.CommentReceived).Parsed)
}

func TestProcessComment_InvalidEnvelope(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)

	_, err := f.alloc.ProcessComment(context.Background(), f.session.ID, CommentEnvelope{Platform: "tiktok", RawText: "sold 1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.alloc.ProcessComment(context.Background(), 999, envelope("c1", "alice", "sold 1", t0))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessComment_Events(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 1)
	f.events.Reset()

	f.comment(t, "c1", "alice", "sold 5", t0)

	evs := f.events.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, events.TypeCommentReceived, evs[0].Type)
	assert.Equal(t, events.TypeClaimCreated, evs[1].Type)
	assert.Equal(t, events.TypeSlotUpdated, evs[2].Type)

	created := evs[1].Data.(events.ClaimCreated)
	assert.Equal(t, "winner", created.Status)
	updated := evs[2].Data.(events.SlotUpdated)
	assert.Equal(t, 1, updated.ClaimedCount)
	assert.Equal(t, "sold_out", updated.Status)

	f.events.Reset()
	f.comment(t, "c1", "alice", "sold 5", t0)
	assert.Empty(t, f.events.Events(), "a duplicate delivery publishes nothing")
}

func TestProcessComment_ClaimWordWinsOverPass(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 1)

	res := f.comment(t, "c1", "alice", "pass 5 no wait sold 5", t0)
	assert.Equal(t, OutcomeWinner, res.Outcome)
}

func TestPass_PromotesHeadOfWaitlist(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 1)
	f.comment(t, "c1", "alice", "sold 5", t0)
	f.comment(t, "c2", "bob", "sold 5", t0.Add(time.Second))
	f.comment(t, "c3", "carol", "sold 5", t0.Add(2*time.Second))
	f.events.Reset()

	res := f.comment(t, "c4", "alice", "PASS 5", t0.Add(3*time.Second))
	require.Equal(t, OutcomePassed, res.Outcome)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, "bob", res.Promoted.ActorID)

	claims := f.claims(t, "5")
	assert.Equal(t, model.ClaimStatusPassed, claims["alice"].Status)
	assert.Equal(t, model.ClaimStatusWinner, claims["bob"].Status)
	assert.Nil(t, claims["bob"].WaitlistPosition)
	assert.Equal(t, model.ClaimStatusWaitlist, claims["carol"].Status)
	assert.Equal(t, 2, *claims["carol"].WaitlistPosition)

	assert.Equal(t, 1, f.slot(t, "5").ClaimedCount)
	f.assertConservation(t, "5")

	released := f.events.OfType(events.TypeClaimReleased)
	require.Len(t, released, 1)
	payload := released[0].Data.(events.ClaimReleased)
	require.NotNil(t, payload.Promoted)
	assert.Equal(t, "bob", payload.Promoted.ActorID)
}

func TestPass_WinnerWithEmptyWaitlist(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 2)
	f.comment(t, "c1", "alice", "sold 5", t0)

	res := f.comment(t, "c2", "alice", "pass 5", t0.Add(time.Second))
	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.Nil(t, res.Promoted)

	slot := f.slot(t, "5")
	assert.Equal(t, 0, slot.ClaimedCount)
	assert.Equal(t, model.SlotStatusUnclaimed, slot.Status)

	// The actor may claim again once the earlier claim is passed.
	assert.Equal(t, OutcomeWinner, f.comment(t, "c3", "alice", "sold 5", t0.Add(2*time.Second)).Outcome)
}

func TestPass_WaitlistOnly(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 1)
	f.comment(t, "c1", "alice", "sold 5", t0)
	f.comment(t, "c2", "bob", "sold 5", t0.Add(time.Second))

	res := f.comment(t, "c3", "bob", "pass5", t0.Add(2*time.Second))
	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.Nil(t, res.Promoted)

	claims := f.claims(t, "5")
	assert.Equal(t, model.ClaimStatusWinner, claims["alice"].Status)
	assert.Equal(t, model.ClaimStatusPassed, claims["bob"].Status)
	assert.Nil(t, claims["bob"].WaitlistPosition)
	assert.Equal(t, 1, f.slot(t, "5").ClaimedCount)
}

func TestPass_NoActiveClaim(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 1)

	assert.Equal(t, OutcomeNoActiveClaim, f.comment(t, "c1", "dave", "pass 5", t0).Outcome)
	assert.Equal(t, OutcomeNoActiveClaim, f.comment(t, "c2", "dave", "pass 99", t0).Outcome)
}

func TestRelease(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	ctx := context.Background()
	f.registerSlot(t, "5", 1)
	win := f.comment(t, "c1", "alice", "sold 5", t0)
	f.comment(t, "c2", "bob", "sold 5", t0.Add(time.Second))

	missing, err := f.alloc.Release(ctx, ReleaseRequest{ClaimID: 9999})
	require.NoError(t, err)
	assert.Equal(t, OutcomeClaimNotFound, missing.Outcome)

	res, err := f.alloc.Release(ctx, ReleaseRequest{ClaimID: win.ClaimID, Note: "did not pay"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReleased, res.Outcome)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, "bob", res.Promoted.ActorID)

	claims := f.claims(t, "5")
	assert.Equal(t, model.ClaimStatusReleased, claims["alice"].Status)
	assert.True(t, claims["alice"].OperatorAction)
	assert.Equal(t, "did not pay", claims["alice"].Note)
	assert.NotNil(t, claims["alice"].ReleasedAt)
	f.assertConservation(t, "5")

	again, err := f.alloc.Release(ctx, ReleaseRequest{ClaimID: win.ClaimID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyReleased, again.Outcome)
	assert.Equal(t, 1, f.slot(t, "5").ClaimedCount)
}

func TestRelease_InactiveSessionAllowed(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	ctx := context.Background()
	f.registerSlot(t, "5", 1)
	win := f.comment(t, "c1", "alice", "sold 5", t0)

	f.session.Status = model.SessionStatusEnded
	require.NoError(t, f.store.UpdateSession(ctx, f.session))

	res, err := f.alloc.Release(ctx, ReleaseRequest{ClaimID: win.ClaimID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReleased, res.Outcome)
	assert.Equal(t, 0, f.slot(t, "5").ClaimedCount)
}

func TestManualAward(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	ctx := context.Background()
	award := func(number, handle string) Result {
		res, err := f.alloc.ManualAward(ctx, AwardRequest{SessionID: f.session.ID, SlotNumber: number, Handle: handle, Note: "phone order"})
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, OutcomeItemNotFound, award("5", "grandma").Outcome)

	f.registerSlot(t, "5", 2)
	first := award("5", "grandma")
	assert.Equal(t, OutcomeWinner, first.Outcome)
	assert.Equal(t, OutcomeDuplicateUser, award("5", "grandma").Outcome)
	assert.Equal(t, OutcomeWinner, award("5", "uncle").Outcome)
	assert.Equal(t, OutcomeNoQuantityAvailable, award("5", "cousin").Outcome)

	claims := f.claims(t, "5")
	c := claims[ManualActorPrefix+"grandma"]
	assert.True(t, c.OperatorAction)
	assert.Equal(t, "grandma", c.ActorHandle)
	assert.Contains(t, c.IdempotencyKey, "operator:")
	f.assertConservation(t, "5")

	_, err := f.alloc.ManualAward(ctx, AwardRequest{SessionID: f.session.ID, SlotNumber: "5"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterSlot_BackfillOrdering(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)

	// Processed out of arrival order; arrival time decides.
	t3 := f.comment(t, "c3", "carol", "sold 200", t0.Add(3*time.Second))
	t1 := f.comment(t, "c1", "alice", "sold 200", t0.Add(1*time.Second))
	t2 := f.comment(t, "c2", "bob", "sold 200", t0.Add(2*time.Second))
	for _, r := range []Result{t1, t2, t3} {
		require.Equal(t, OutcomeUnmatched, r.Outcome)
	}
	f.events.Reset()

	res := f.registerSlot(t, "200", 2)
	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.Equal(t, []int64{t1.ClaimID, t2.ClaimID}, res.Winners)
	assert.Equal(t, []int64{t3.ClaimID}, res.Waitlisted)
	require.NotNil(t, res.Slot)
	assert.Equal(t, 2, res.Slot.ClaimedCount)
	assert.Equal(t, model.SlotStatusSoldOut, res.Slot.Status)

	claims := f.claims(t, "200")
	assert.Equal(t, model.ClaimStatusWinner, claims["alice"].Status)
	assert.Equal(t, model.ClaimStatusWinner, claims["bob"].Status)
	assert.Equal(t, model.ClaimStatusWaitlist, claims["carol"].Status)
	assert.Equal(t, 1, *claims["carol"].WaitlistPosition)
	f.assertConservation(t, "200")

	resolved := f.events.OfType(events.TypeBackfillResolved)
	require.Len(t, resolved, 1)
	assert.Len(t, f.events.OfType(events.TypeSlotUpdated), 1)
}

func TestRegisterSlot_Errors(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	ctx := context.Background()
	f.registerSlot(t, "1", 1)

	_, err := f.alloc.RegisterSlot(ctx, RegisterSlotRequest{SessionID: f.session.ID, Number: "1", Quantity: 3})
	assert.ErrorIs(t, err, ErrSlotExists)

	_, err = f.alloc.RegisterSlot(ctx, RegisterSlotRequest{SessionID: f.session.ID, Number: "2", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.alloc.RegisterSlot(ctx, RegisterSlotRequest{SessionID: 999, Number: "2", Quantity: 1})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveUnmatched_ContinuesWaitlist(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	ctx := context.Background()

	missing, err := f.alloc.ResolveUnmatched(ctx, f.session.ID, "30")
	require.NoError(t, err)
	assert.Equal(t, OutcomeItemNotFound, missing.Outcome)

	f.registerSlot(t, "30", 1)
	f.comment(t, "c1", "alice", "sold 30", t0)
	f.comment(t, "c2", "bob", "sold 30", t0.Add(time.Second))

	// A claim stranded as unmatched, e.g. by an import.
	err = f.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateClaim(&model.Claim{
			SessionID:      f.session.ID,
			SlotNumber:     "30",
			Platform:       "tiktok",
			ActorID:        "erin",
			Status:         model.ClaimStatusUnmatched,
			IdempotencyKey: "import-1",
			ArrivedAt:      t0.Add(-time.Minute),
		})
	})
	require.NoError(t, err)

	res, err := f.alloc.ResolveUnmatched(ctx, f.session.ID, "30")
	require.NoError(t, err)
	assert.Empty(t, res.Winners)
	require.Len(t, res.Waitlisted, 1)

	claims := f.claims(t, "30")
	assert.Equal(t, 2, *claims["erin"].WaitlistPosition)
	f.assertConservation(t, "30")
}

func TestKeywordCache_Invalidation(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	ctx := context.Background()
	f.registerSlot(t, "5", 3)

	assert.Equal(t, OutcomeWinner, f.comment(t, "c1", "alice", "sold 5", t0).Outcome)

	f.session.ClaimWord = "mine"
	require.NoError(t, f.store.UpdateSession(ctx, f.session))

	assert.Equal(t, OutcomeNotParsed, f.comment(t, "c2", "bob", "mine 5", t0).Outcome, "cached words still apply")

	f.alloc.InvalidateSession(f.session.ID)
	assert.Equal(t, OutcomeWinner, f.comment(t, "c3", "bob", "mine 5", t0).Outcome)
}

func TestProcessComment_CancelledContextRollsBack(t *testing.T) {
	f := newFixture(t, model.SessionStatusActive)
	f.registerSlot(t, "5", 1)

	// Warm the keyword cache so the cancellation is observed by the transaction.
	f.comment(t, "c0", "zed", "hello", t0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.alloc.ProcessComment(ctx, f.session.ID, envelope("c1", "alice", "sold 5", t0))
	require.Error(t, err)

	assert.Empty(t, f.claims(t, "5"))
	assert.Equal(t, 0, f.slot(t, "5").ClaimedCount)

	// The retry is processed normally.
	assert.Equal(t, OutcomeWinner, f.comment(t, "c1", "alice", "sold 5", t0).Outcome)
}

// faultyStore fails the chosen Tx write once, after earlier statements in the same
// transaction have already run.
type faultyStore struct {
	store.Store
	failSlotCount   bool
	failCreateClaim bool
}

type faultyTx struct {
	store.Tx
	owner *faultyStore
}

var errConnReset = errors.New("connection reset")

func (s *faultyStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, owner: s})
	})
}

func (t *faultyTx) SaveSlotCount(slot *model.Slot) error {
	if t.owner.failSlotCount {
		t.owner.failSlotCount = false
		return errConnReset
	}
	return t.Tx.SaveSlotCount(slot)
}

func (t *faultyTx) CreateClaim(c *model.Claim) error {
	if t.owner.failCreateClaim {
		t.owner.failCreateClaim = false
		return errConnReset
	}
	return t.Tx.CreateClaim(c)
}

func TestProcessComment_MidTransactionFaultRollsBack(t *testing.T) {
	testCases := []struct {
		name  string
		fault func(*faultyStore)
	}{
		{name: "Slot count write fails", fault: func(s *faultyStore) { s.failSlotCount = true }},
		{name: "Claim insert fails", fault: func(s *faultyStore) { s.failCreateClaim = true }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, model.SessionStatusActive)
			f.registerSlot(t, "5", 1)
			f.events.Reset()

			faulty := &faultyStore{Store: f.store}
			tc.fault(faulty)
			f.alloc.store = faulty

			env := envelope("c1", "alice", "sold 5", t0)
			_, err := f.alloc.ProcessComment(context.Background(), f.session.ID, env)
			require.ErrorIs(t, err, errConnReset)

			assert.Empty(t, f.claims(t, "5"), "no claim row may survive the fault")
			comments, err := f.store.ListComments(context.Background(), f.session.ID, 10)
			require.NoError(t, err)
			assert.Empty(t, comments, "the comment row is rolled back with the claim")
			assert.Equal(t, 0, f.slot(t, "5").ClaimedCount)
			assert.Empty(t, f.events.Events(), "nothing is published for a rolled back transaction")

			// Retrying the identical envelope succeeds as if the first attempt never happened.
			res, err := f.alloc.ProcessComment(context.Background(), f.session.ID, env)
			require.NoError(t, err)
			assert.Equal(t, OutcomeWinner, res.Outcome)
			f.assertConservation(t, "5")
		})
	}
}
