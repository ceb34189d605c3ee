package notify

import (
	"context"
	"sync"

	"github.com/tbourn/go-complaint-triage/internal/metrics"
)

// DefaultBuffer is the per-subscription queue length used when Subscribe is
// called with a non-positive size.
const DefaultBuffer = 16

// Hub fans events out to in-process subscriptions. It is safe for
// concurrent use. Publish never blocks: a subscriber whose buffer is full
// misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is one registered listener. Read events from Events until it
// is closed.
type Subscription struct {
	hub  *Hub
	ch   chan Event
	once sync.Once
}

// Events returns the receive side of the subscription. The channel is
// closed after Close or when the hub shuts down.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unregisters the subscription. Calling it more than once is a no-op.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if _, ok := h.subs[s]; ok {
			delete(h.subs, s)
			metrics.NotifySubscribers.Dec()
		}
		h.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a listener with the given buffer size. After the hub
// is closed the returned subscription is already closed.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{hub: h, ch: make(chan Event, buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	metrics.NotifySubscribers.Inc()
	return s
}

// Publish delivers ev to every current subscriber without blocking. It
// returns ErrPublish only when the hub has been closed.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrPublish
	}
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			metrics.NotifyEventsDropped.Inc()
		}
	}
	return nil
}

// Len reports the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription and rejects further publishes.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return nil
}
