package statestore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/natsclient"
	"github.com/c360/sentinel/types"
)

const (
	snapshotKey     = "snapshot"
	recentEventsKey = "recent_events"
)

// NATS persists state into a JetStream KV bucket. The snapshot is a plain
// last-writer-wins Put; the recent-event list is maintained under CAS so
// concurrent appenders never drop each other's events.
type NATS struct {
	kv     *natsclient.KVStore
	logger *slog.Logger
}

// NewNATS creates a store over the given KV bucket wrapper.
func NewNATS(kv *natsclient.KVStore, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{kv: kv, logger: logger.With("component", "statestore")}
}

// SaveSnapshot implements Store.
func (s *NATS) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.WrapInvalid(err, "statestore", "saveSnapshot", "encode failed")
	}
	if _, err := s.kv.Put(ctx, snapshotKey, data); err != nil {
		return errors.WrapTransient(err, "statestore", "saveSnapshot", "kv put failed")
	}
	return nil
}

// AppendEvent implements Store.
func (s *NATS) AppendEvent(ctx context.Context, event types.SensorEvent) error {
	err := s.kv.UpdateWithRetry(ctx, recentEventsKey, func(current []byte) ([]byte, error) {
		var events []types.SensorEvent
		if len(current) > 0 {
			if err := json.Unmarshal(current, &events); err != nil {
				// Corrupt list, start over rather than wedge appends.
				s.logger.Warn("resetting corrupt recent-event list", "error", err)
				events = nil
			}
		}
		events = append(events, event)
		if len(events) > recentEventLimit {
			events = events[len(events)-recentEventLimit:]
		}
		return json.Marshal(events)
	})
	if err != nil {
		return errors.WrapTransient(err, "statestore", "appendEvent", "kv update failed")
	}
	return nil
}

// Close implements Store.
func (s *NATS) Close() error { return nil }
