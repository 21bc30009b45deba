// Package events fans session lifecycle events out to subscribers after the
// originating transaction has committed. Delivery is asynchronous and best-effort:
// a full buffer drops the event and subscriber errors are only logged.
package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	SessionCreated    = "session.created"
	VolunteerAssigned = "session.volunteer_assigned"
	SessionEnded      = "session.ended"
)

// Event describes one committed session transition.
type Event struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	SessionID   uint                   `json:"session_id"`
	SeekerID    uint                   `json:"seeker_id"`
	VolunteerID *uint                  `json:"volunteer_id,omitempty"`
	Status      string                 `json:"status"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Recipients returns the users an event concerns.
func (e Event) Recipients() []uint {
	out := []uint{e.SeekerID}
	if e.VolunteerID != nil {
		out = append(out, *e.VolunteerID)
	}
	return out
}

type Handler func(ctx context.Context, e Event) error

// Publisher is what the session lifecycle depends on.
type Publisher interface {
	Publish(e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

type Bus struct {
	ch       chan Event
	workers  int
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
	wg       sync.WaitGroup
	timeout  time.Duration
}

func NewBus(buffer, workers int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Bus{ch: make(chan Event, buffer), workers: workers, timeout: 10 * time.Second}
}

// Subscribe registers h for every event type.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

func (b *Bus) Start() {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.run()
	}
}

// Publish stamps and enqueues e without blocking.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- e:
	default:
		log.Printf("[Events] buffer full, dropping %s for session %d", e.Type, e.SessionID)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) run() {
	defer b.wg.Done()
	for e := range b.ch {
		b.mu.RLock()
		handlers := b.handlers
		b.mu.RUnlock()
		for _, h := range handlers {
			b.deliver(h, e)
		}
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Events] handler panic on %s: %v", e.Type, r)
		}
	}()
	if err := h(ctx, e); err != nil {
		log.Printf("[Events] handler error on %s for session %d: %v", e.Type, e.SessionID, err)
	}
}
