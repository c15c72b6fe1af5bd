// Package broadcast is a bounded fan-out bus. Publishing never blocks: a
// subscriber whose buffer is full misses the value and the miss is counted.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 1000

// SubscriberID identifies a subscription.
type SubscriberID string

type subscriber[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

// Bus fans values of type T out to subscribers.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]*subscriber[T]
	capacity    int
	published   atomic.Uint64
	dropped     atomic.Uint64
	logger      *slog.Logger
}

// New creates a bus. capacity <= 0 means DefaultCapacity; a nil logger
// means slog.Default().
func New[T any](capacity int, logger *slog.Logger) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{
		subscribers: make(map[SubscriberID]*subscriber[T]),
		capacity:    capacity,
		logger:      logger,
	}
}

// Subscribe registers a subscriber and returns its receive channel.
func (b *Bus[T]) Subscribe() (SubscriberID, <-chan T) {
	id := SubscriberID(uuid.Must(uuid.NewV7()).String())
	sub := &subscriber[T]{ch: make(chan T, b.capacity)}

	b.mu.Lock()
	b.subscribers[id] = sub
	n := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "subscriber_id", id, "subscribers", n)
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. It reports
// whether id was subscribed.
func (b *Bus[T]) Unsubscribe(id SubscriberID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return false
	}
	delete(b.subscribers, id)
	close(sub.ch)
	b.logger.Debug("subscriber removed", "subscriber_id", id, "subscribers", len(b.subscribers))
	return true
}

// Publish delivers v to every subscriber with buffer space and returns how
// many received it.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.published.Add(1)
	delivered := 0
	for id, sub := range b.subscribers {
		select {
		case sub.ch <- v:
			delivered++
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			b.logger.Warn("subscriber buffer full, dropping", "subscriber_id", id)
		}
	}
	return delivered
}

// Close unsubscribes everyone.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

func (b *Bus[T]) Stats() Stats {
	b.mu.RLock()
	n := len(b.subscribers)
	b.mu.RUnlock()
	return Stats{Subscribers: n, Published: b.published.Load(), Dropped: b.dropped.Load()}
}

// Dropped returns how many values subscriber id has missed.
func (b *Bus[T]) Dropped(id SubscriberID) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subscribers[id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
