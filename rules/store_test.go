package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/types"
)

func validRule(id string) Rule {
	return Rule{
		ID:         id,
		SensorType: "mq134",
		Condition:  "gas_concentration > 500",
		Severity:   types.SeverityCritical,
		Channels:   []string{"email", "sms"},
		Throttle:   types.Duration(30 * time.Second),
		Enabled:    true,
	}
}

func TestAddAndGet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(validRule("gas_crit")))

	got, err := s.Get("gas_crit")
	require.NoError(t, err)
	assert.Equal(t, "gas_crit", got.ID)
	assert.NotNil(t, got.Compiled())
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestAddCollectsAllViolations(t *testing.T) {
	s := NewStore()
	err := s.Add(Rule{
		Condition: "gas >> 500",
		Severity:  "urgent",
		Channels:  []string{""},
		Throttle:  types.Duration(-time.Second),
	})
	require.Error(t, err)

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := make(map[string]bool)
	for _, v := range ve.Violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["id"])
	assert.True(t, fields["condition"])
	assert.True(t, fields["severity"])
	assert.True(t, fields["channels"])
	assert.True(t, fields["throttle"])

	// Rejected rules are never partially applied
	assert.Empty(t, s.Export())
}

func TestAddReplacesExisting(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(validRule("r1")))
	first, _ := s.Get("r1")

	updated := validRule("r1")
	updated.Condition = "gas_concentration > 700"
	require.NoError(t, s.Add(updated))

	got, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "gas_concentration > 700", got.Condition)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)
}

func TestDeleteAndToggle(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(validRule("r1")))

	require.NoError(t, s.Toggle("r1", false))
	got, _ := s.Get("r1")
	assert.False(t, got.Enabled)

	require.NoError(t, s.Delete("r1"))
	assert.True(t, errors.IsNotFound(s.Delete("r1")))
	assert.True(t, errors.IsNotFound(s.Toggle("r1", true)))
}

func TestListFilters(t *testing.T) {
	s := NewStore()
	r1 := validRule("a")
	r2 := validRule("b")
	r2.SensorType = "dht22"
	r2.Condition = "temperature > 30"
	r2.Severity = types.SeverityWarning
	r3 := validRule("c")
	r3.Enabled = false
	r3.DeviceID = "d9"
	require.NoError(t, s.Add(r1))
	require.NoError(t, s.Add(r2))
	require.NoError(t, s.Add(r3))

	assert.Len(t, s.List(ListFilter{}), 3)
	assert.Len(t, s.List(ListFilter{SensorType: "mq134"}), 2)
	assert.Len(t, s.List(ListFilter{Severity: types.SeverityWarning}), 1)

	enabled := true
	assert.Len(t, s.List(ListFilter{Enabled: &enabled}), 2)

	// AND-combined
	got := s.List(ListFilter{SensorType: "mq134", DeviceID: "d9"})
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestForEvent(t *testing.T) {
	s := NewStore()
	global := validRule("global")
	global.SensorType = ""
	scoped := validRule("scoped")
	device := validRule("device")
	device.DeviceID = "d1"
	disabled := validRule("disabled")
	disabled.Enabled = false
	require.NoError(t, s.Add(global))
	require.NoError(t, s.Add(scoped))
	require.NoError(t, s.Add(device))
	require.NoError(t, s.Add(disabled))

	event := &types.SensorEvent{DeviceID: "d1", SensorType: "mq134"}
	got := s.ForEvent(event)
	require.Len(t, got, 3)
	assert.Equal(t, "device", got[0].ID)
	assert.Equal(t, "global", got[1].ID)
	assert.Equal(t, "scoped", got[2].ID)

	// Mismatched device and sensor type drop scoped rules
	other := &types.SensorEvent{DeviceID: "d2", SensorType: "pir"}
	got = s.ForEvent(other)
	require.Len(t, got, 1)
	assert.Equal(t, "global", got[0].ID)
}

func TestBulkImport(t *testing.T) {
	s := NewStore()
	missing := validRule("bad")
	missing.Condition = ""

	result := s.BulkImport([]Rule{validRule("good"), missing})
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad", result.Errors[0].RuleID)
	assert.Contains(t, result.Errors[0].Error, "condition")

	_, err := s.Get("good")
	assert.NoError(t, err)
	_, err = s.Get("bad")
	assert.Error(t, err)
}

func TestGetStats(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(validRule("a")))
	warn := validRule("b")
	warn.Severity = types.SeverityWarning
	warn.Enabled = false
	require.NoError(t, s.Add(warn))

	stats := s.GetStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Enabled)
	assert.Equal(t, 1, stats.Disabled)
	assert.Equal(t, 1, stats.BySeverity[types.SeverityCritical])
	assert.Equal(t, 1, stats.BySeverity[types.SeverityWarning])
	assert.Equal(t, 2, stats.BySensorType["mq134"])
}

func TestExportRoundTrip(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(validRule("a")))
	require.NoError(t, s.Add(validRule("b")))

	exported := s.Export()
	require.Len(t, exported, 2)

	// Mutating the export does not touch the store
	exported[0].Channels[0] = "mutated"
	got, _ := s.Get(exported[0].ID)
	assert.Equal(t, "email", got.Channels[0])

	s2 := NewStore()
	result := s2.BulkImport(exported)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Failed)
}
