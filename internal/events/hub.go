package events

import (
	"context"
	"log/slog"
	"sync"
)

// Hub fans events out to in-process subscribers, optionally filtered by trip.
// Slow subscribers miss events rather than blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	dropped uint64
}

type subscription struct {
	tripID string
	ch     chan Event
}

// NewHub creates a Hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a subscriber for tripID, or for every trip when tripID
// is empty. The returned cancel func must be called to release it.
func (h *Hub) Subscribe(tripID string, buffer int) (<-chan Event, func()) {
	sub := &subscription{tripID: tripID, ch: make(chan Event, buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every matching subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.tripID != "" && sub.tripID != ev.Payload.TripID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped++
			slog.Warn("Subscriber too slow, event dropped", "event_id", ev.ID, "trip_id", ev.Payload.TripID)
		}
	}
	return nil
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
