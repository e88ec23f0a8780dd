package statestore

import (
	"context"
	"sync"

	"github.com/c360/sentinel/pkg/buffer"
	"github.com/c360/sentinel/types"
)

// Memory is an in-process Store used when no persistence backend is
// configured, and by tests.
type Memory struct {
	mu      sync.RWMutex
	snap    Snapshot
	hasSnap bool
	events  *buffer.Ring[types.SensorEvent]
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{events: buffer.NewRing[types.SensorEvent](recentEventLimit)}
}

// SaveSnapshot implements Store.
func (m *Memory) SaveSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.hasSnap = true
	return nil
}

// AppendEvent implements Store.
func (m *Memory) AppendEvent(_ context.Context, event types.SensorEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.Append(event)
	return nil
}

// Snapshot returns the last saved snapshot, if any.
func (m *Memory) Snapshot() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap, m.hasSnap
}

// RecentEvents returns the retained events, oldest first.
func (m *Memory) RecentEvents() []types.SensorEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events.Items()
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
