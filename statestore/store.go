// Package statestore persists engine state for inspection and warm restarts.
// Writes are best effort; the processing path never blocks on persistence
// failures.
package statestore

import (
	"context"
	"time"

	"github.com/c360/sentinel/types"
)

// recentEventLimit caps the persisted recent-event list.
const recentEventLimit = 100

// Snapshot is a point-in-time view of engine state.
type Snapshot struct {
	Timestamp        time.Time       `json:"timestamp"`
	EventsProcessed  uint64          `json:"events_processed"`
	EventsFailed     uint64          `json:"events_failed"`
	AlertsDispatched uint64          `json:"alerts_dispatched"`
	EventsPerSecond  float64         `json:"events_per_second"`
	RulesTotal       int             `json:"rules_total"`
	RulesEnabled     int             `json:"rules_enabled"`
	Occupancy        map[string]bool `json:"occupancy,omitempty"`
}

// Store receives state writes from the engine.
type Store interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	AppendEvent(ctx context.Context, event types.SensorEvent) error
	Close() error
}
