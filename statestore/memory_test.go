package statestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/types"
)

func TestMemorySnapshot(t *testing.T) {
	m := NewMemory()

	_, ok := m.Snapshot()
	assert.False(t, ok)

	snap := Snapshot{
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventsProcessed: 42,
		Occupancy:       map[string]bool{"kitchen": true},
	}
	require.NoError(t, m.SaveSnapshot(context.Background(), snap))

	got, ok := m.Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint64(42), got.EventsProcessed)
	assert.True(t, got.Occupancy["kitchen"])
}

func TestMemoryRecentEventsBounded(t *testing.T) {
	m := NewMemory()

	for i := 0; i < recentEventLimit+20; i++ {
		event := types.SensorEvent{DeviceID: fmt.Sprintf("dev-%d", i)}
		require.NoError(t, m.AppendEvent(context.Background(), event))
	}

	events := m.RecentEvents()
	require.Len(t, events, recentEventLimit)
	assert.Equal(t, "dev-20", events[0].DeviceID)
	assert.Equal(t, fmt.Sprintf("dev-%d", recentEventLimit+19), events[len(events)-1].DeviceID)
}
