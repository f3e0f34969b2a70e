// Package ingest runs one comment poller per live session and feeds the allocator.
package ingest

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"livesale-backend/internal/allocator"
)

// ErrAlreadyActive is returned by Start when the session already has a poller.
var ErrAlreadyActive = errors.New("poller already active for session")

// maxAttempts bounds retries of one comment after an infrastructure fault. Retrying is
// safe because the allocator is idempotent per comment.
const maxAttempts = 3

// Processor is the allocator entry point the pollers drive.
type Processor interface {
	ProcessComment(ctx context.Context, sessionID int64, env allocator.CommentEnvelope) (allocator.Result, error)
}

type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the running pollers. All pollers share one rate limiter so the total
// request rate against comment sources stays bounded.
type Registry struct {
	proc     Processor
	limiter  *rate.Limiter
	interval time.Duration
	backoff  time.Duration

	mu      sync.Mutex
	pollers map[int64]*poller
}

// NewRegistry creates an empty registry.
func NewRegistry(proc Processor, interval time.Duration, limiter *rate.Limiter) *Registry {
	return &Registry{
		proc:     proc,
		limiter:  limiter,
		interval: interval,
		backoff:  200 * time.Millisecond,
		pollers:  make(map[int64]*poller),
	}
}

// Start begins polling src for sessionID. The poller runs until Stop, StopAll, or ctx is
// done; pass a process-scoped context, not a request context.
func (r *Registry) Start(ctx context.Context, sessionID int64, src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pollers[sessionID]; ok {
		select {
		case <-p.done:
			// Exited on its own; replace it.
		default:
			return ErrAlreadyActive
		}
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &poller{cancel: cancel, done: make(chan struct{})}
	r.pollers[sessionID] = p
	go r.run(pctx, sessionID, src, p)
	log.Printf("Poller started for session %d", sessionID)
	return nil
}

// Stop cancels the session's poller and waits for it to exit. It reports whether a poller
// was running; one that already exited on its own is only forgotten.
func (r *Registry) Stop(sessionID int64) bool {
	r.mu.Lock()
	p, ok := r.pollers[sessionID]
	delete(r.pollers, sessionID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	select {
	case <-p.done:
		p.cancel()
		return false
	default:
	}
	p.cancel()
	<-p.done
	log.Printf("Poller stopped for session %d", sessionID)
	return true
}

// IsActive reports whether the session has a running poller.
func (r *Registry) IsActive(sessionID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pollers[sessionID]
	if !ok {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Active lists sessions with running pollers in ascending order.
func (r *Registry) Active() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.pollers))
	for id := range r.pollers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	active := ids[:0]
	for _, id := range ids {
		if r.IsActive(id) {
			active = append(active, id)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	return active
}

// StopAll stops every poller.
func (r *Registry) StopAll() {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.pollers))
	for id := range r.pollers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Stop(id)
	}
}

func (r *Registry) run(ctx context.Context, sessionID int64, src Source, p *poller) {
	defer close(p.done)

	var cursor string
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			next, err := r.PollOnce(ctx, sessionID, src, cursor)
			if errors.Is(err, allocator.ErrSessionNotFound) {
				log.Printf("Session %d no longer exists; poller exiting", sessionID)
				return
			}
			cursor = next
			timer.Reset(r.interval)
		}
	}
}

// PollOnce fetches one batch after cursor and processes it in order. It returns the cursor
// to use next: the batch cursor when every comment was handled, else the old one so the
// batch is fetched again.
func (r *Registry) PollOnce(ctx context.Context, sessionID int64, src Source, cursor string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return cursor, err
	}

	batch, err := src.Fetch(ctx, cursor)
	if err != nil {
		log.Printf("Error fetching comments for session %d: %v", sessionID, err)
		return cursor, err
	}

	for _, env := range batch.Comments {
		if err := r.process(ctx, sessionID, env); err != nil {
			return cursor, err
		}
	}

	if batch.Cursor == "" {
		return cursor, nil
	}
	return batch.Cursor, nil
}

func (r *Registry) process(ctx context.Context, sessionID int64, env allocator.CommentEnvelope) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var res allocator.Result
		res, err = r.proc.ProcessComment(ctx, sessionID, env)
		switch {
		case err == nil:
			if res.Outcome != allocator.OutcomeNotParsed && res.Outcome != allocator.OutcomeDuplicateComment {
				log.Printf("Session %d comment %s from %s: %s %s", sessionID, env.SourceCommentID, env.ActorID, res.Outcome, res.SlotNumber)
			}
			return nil
		case errors.Is(err, allocator.ErrInvalidInput):
			log.Printf("Skipping malformed comment %s in session %d: %v", env.SourceCommentID, sessionID, err)
			return nil
		case errors.Is(err, allocator.ErrSessionNotFound):
			return err
		}

		log.Printf("Attempt %d/%d failed for comment %s in session %d: %v", attempt, maxAttempts, env.SourceCommentID, sessionID, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return err
}
