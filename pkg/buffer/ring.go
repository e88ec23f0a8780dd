// Package buffer provides a thread-safe bounded ring buffer with drop-oldest
// overflow, used for per-device history, per-location correlation windows and
// the delivery record log. Unlike a consume queue, readers take snapshots of
// the retained window; entries leave only by overflow, predicate purge or Clear.
package buffer

import (
	"sync"
)

// Ring is a fixed-capacity ring buffer. When full, Append evicts the oldest
// entry. The zero value is not usable; use NewRing.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	head     int // next write position
	size     int
	appends  uint64
	evicted  uint64
}

// NewRing creates a ring buffer with the given capacity (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds an item, evicting the oldest entry when the buffer is full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	} else {
		r.evicted++
	}
	r.appends++
}

// Len returns the current number of retained items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of items the buffer retains.
func (r *Ring[T]) Capacity() int {
	return r.capacity // immutable, no lock needed
}

// Items returns a snapshot of the retained items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(r.size)
}

// Last returns a snapshot of the most recent n items, oldest first.
// If fewer than n items are retained, all of them are returned.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > r.size {
		n = r.size
	}
	return r.snapshotLocked(n)
}

// snapshotLocked copies the newest n items oldest-first. Caller holds a lock.
func (r *Ring[T]) snapshotLocked(n int) []T {
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	start := r.head - n
	for i := 0; i < n; i++ {
		idx := start + i
		if idx < 0 {
			idx += r.capacity
		}
		out[i] = r.items[idx%r.capacity]
	}
	return out
}

// RemoveIf drops every retained item for which drop returns true, preserving
// the order of the survivors. Used for time-horizon purges on correlation
// windows.
func (r *Ring[T]) RemoveIf(drop func(T) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]T, 0, r.size)
	for _, item := range r.snapshotLocked(r.size) {
		if !drop(item) {
			kept = append(kept, item)
		}
	}
	removed := r.size - len(kept)
	if removed == 0 {
		return 0
	}

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	copy(r.items, kept)
	r.head = len(kept) % r.capacity
	r.size = len(kept)
	return removed
}

// Clear removes all retained items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Stats reports lifetime append and eviction counts for observability.
func (r *Ring[T]) Stats() (appends, evicted uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.appends, r.evicted
}
