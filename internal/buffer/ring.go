// Package buffer provides a bounded ring of recent items.
package buffer

import (
	"sync"
)

// Ring is a thread-safe circular buffer that keeps the most recent items
// up to a fixed capacity. When full, the oldest item is discarded to make
// room for the new one.
//
// The chat view uses it to keep recent notices (connectivity changes,
// server errors, failed requests) for display.
type Ring[T any] struct {
	items    []T
	start    int
	capacity int
	mu       sync.RWMutex
}

// NewRing creates a Ring with the given capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends items, discarding the oldest ones beyond capacity.
func (r *Ring[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the last 'capacity' items can survive
	if len(items) > r.capacity {
		items = items[len(items)-r.capacity:]
	}
	for _, item := range items {
		if len(r.items) < r.capacity {
			r.items = append(r.items, item)
			continue
		}
		r.items[r.start] = item
		r.start = (r.start + 1) % r.capacity
	}
}

// Items returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return nil
	}

	result := make([]T, 0, len(r.items))
	result = append(result, r.items[r.start:]...)
	result = append(result, r.items[:r.start]...)
	return result
}

// Last returns the most recent item.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	idx := (r.start + len(r.items) - 1) % len(r.items)
	return r.items[idx], true
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.items)
	r.items = r.items[:0]
	r.start = 0
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	return r.capacity
}
