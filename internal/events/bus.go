package events

import (
	"context"
	"log"
	"sync"
)

// Sink delivers events to one downstream system.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Bus fans events out to sinks from a fixed pool of workers. Publish never blocks:
// when the queue is full the event is dropped and logged.
type Bus struct {
	size  int
	jobs  chan Event
	sinks []Sink
	wg    sync.WaitGroup
}

// NewBus creates a bus with the given queue capacity and worker count.
func NewBus(queueSize, workers int, sinks ...Sink) *Bus {
	if workers <= 0 {
		workers = 1
	}
	return &Bus{
		size:  workers,
		jobs:  make(chan Event, queueSize),
		sinks: sinks,
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (b *Bus) Start(ctx context.Context) {
	for i := 0; i < b.size; i++ {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (b *Bus) Wait() {
	b.wg.Wait()
}

func (b *Bus) worker(ctx context.Context, id int) {
	defer b.wg.Done()
	log.Printf("Event worker %d started", id)
	for {
		select {
		case e := <-b.jobs:
			b.deliver(ctx, e)
		case <-ctx.Done():
			log.Printf("Event worker %d shutting down", id)
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	for _, s := range b.sinks {
		if err := s.Handle(ctx, e); err != nil {
			log.Printf("Sink %s failed on %s event %s: %v", s.Name(), e.Type, e.ID, err)
		}
	}
}

// Publish queues e for delivery.
func (b *Bus) Publish(_ context.Context, e Event) {
	select {
	case b.jobs <- e:
	default:
		log.Printf("Event queue full; dropping %s event %s for session %d", e.Type, e.ID, e.SessionID)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t in publish order.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
