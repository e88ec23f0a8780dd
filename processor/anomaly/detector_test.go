package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/types"
)

func numericEvent(deviceID, sensorType string, value float64) *types.SensorEvent {
	return &types.SensorEvent{
		DeviceID:   deviceID,
		SensorType: sensorType,
		Timestamp:  time.Now().UTC(),
		Fields:     map[string]any{"value": value},
	}
}

func feed(d *Detector, deviceID, sensorType string, values ...float64) {
	for _, v := range values {
		d.Process(numericEvent(deviceID, sensorType, v))
	}
}

func alertRules(alerts []types.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.RuleID
	}
	return out
}

func TestSpikeDetection(t *testing.T) {
	d := New(Config{})
	feed(d, "d2", "generic", 100, 101, 102, 103, 104, 105, 106, 107, 108, 109)

	alerts := d.Process(numericEvent("d2", "generic", 500))
	require.Contains(t, alertRules(alerts), RuleSpike)

	for _, a := range alerts {
		if a.RuleID == RuleSpike {
			assert.Equal(t, types.SeverityWarning, a.Severity)
			assert.Equal(t, 500.0, a.Value)
			assert.Equal(t, "d2", a.DeviceID)
			assert.Contains(t, a.Message, "spike")
		}
	}
}

func TestNearbyValueNoAlert(t *testing.T) {
	d := New(Config{})
	feed(d, "d2", "generic", 100, 101, 102, 103, 104, 105, 106, 107, 108, 109)

	alerts := d.Process(numericEvent("d2", "generic", 101.5))
	assert.Empty(t, alerts)
}

func TestDropDetection(t *testing.T) {
	d := New(Config{})
	feed(d, "d1", "generic", 100, 102, 104, 101, 103, 100, 102, 104, 101, 103)

	alerts := d.Process(numericEvent("d1", "generic", 10))
	assert.Contains(t, alertRules(alerts), RuleDrop)
}

func TestSpikeRequiresMinimumHistory(t *testing.T) {
	d := New(Config{})
	feed(d, "d1", "generic", 100, 100.5, 101, 100.2)

	// Only 4 history points: no spike/drop flag regardless of magnitude
	alerts := d.Process(numericEvent("d1", "generic", 100000))
	assert.NotContains(t, alertRules(alerts), RuleSpike)
	assert.NotContains(t, alertRules(alerts), RuleDrop)
}

func TestZeroStddevNeverFlagsSpike(t *testing.T) {
	d := New(Config{FlatlineWindow: 50}) // keep flatline out of the way
	feed(d, "d1", "generic", 5, 5, 5, 5, 5, 5)

	alerts := d.Process(numericEvent("d1", "generic", 100000))
	assert.NotContains(t, alertRules(alerts), RuleSpike)
}

func TestFlatlineDetection(t *testing.T) {
	d := New(Config{})
	feed(d, "d1", "generic", 7, 7, 7, 7, 7, 7, 7, 7, 7)

	// Tenth identical reading completes the flatline window
	alerts := d.Process(numericEvent("d1", "generic", 7))
	require.Contains(t, alertRules(alerts), RuleFlatline)

	for _, a := range alerts {
		if a.RuleID == RuleFlatline {
			assert.Equal(t, types.SeverityWarning, a.Severity)
		}
	}
}

func TestFlatlineNineIdenticalOneDifferentNeverFlags(t *testing.T) {
	d := New(Config{})
	feed(d, "d1", "generic", 7, 7, 7, 7, 7, 7, 7, 7, 7)

	alerts := d.Process(numericEvent("d1", "generic", 8))
	assert.NotContains(t, alertRules(alerts), RuleFlatline)
}

func TestOutOfRangeBounds(t *testing.T) {
	d := New(Config{})

	tests := []struct {
		sensorType string
		value      float64
		flagged    bool
	}{
		{"mq134", 0, false},     // exactly at min
		{"mq134", 1000, false},  // exactly at max
		{"mq134", -1, true},     // one unit beyond min
		{"mq134", 1001, true},   // one unit beyond max
		{"temperature", -40, false},
		{"temperature", 85, false},
		{"temperature", 86, true},
		{"temperature", -41, true},
		{"humidity", 101, true},
		{"presence", 2, true},
		{"unknown_sensor", 1e12, false}, // absent from table, never flagged
	}

	for _, tt := range tests {
		alerts := d.Process(numericEvent("dev-"+tt.sensorType, tt.sensorType, tt.value))
		if tt.flagged {
			require.Contains(t, alertRules(alerts), RuleOutOfRange, "%s %g", tt.sensorType, tt.value)
			for _, a := range alerts {
				if a.RuleID == RuleOutOfRange {
					assert.Equal(t, types.SeverityCritical, a.Severity)
				}
			}
		} else {
			assert.NotContains(t, alertRules(alerts), RuleOutOfRange, "%s %g", tt.sensorType, tt.value)
		}
	}
}

func TestRapidFluctuation(t *testing.T) {
	d := New(Config{})
	// Alternating large swings around mean 55: avg diff 90 >> 20% of mean
	feed(d, "d1", "generic", 10, 100, 10, 100, 10, 100, 10, 100, 10)

	alerts := d.Process(numericEvent("d1", "generic", 100))
	assert.Contains(t, alertRules(alerts), RuleFluctuation)
}

func TestFluctuationGuardsAgainstNonPositiveMean(t *testing.T) {
	d := New(Config{FlatlineWindow: 50})
	feed(d, "d1", "generic", -10, 10, -10, 10, -10, 10, -10, 10, -10)

	// Mean 0: fluctuation never flags
	alerts := d.Process(numericEvent("d1", "generic", 10))
	assert.NotContains(t, alertRules(alerts), RuleFluctuation)
}

func TestHistoryBounded(t *testing.T) {
	d := New(Config{HistorySize: 10})
	for i := 0; i < 50; i++ {
		d.Process(numericEvent("d1", "generic", float64(i)))
	}
	assert.Equal(t, 10, d.HistoryLen("d1"))
	assert.Equal(t, 0, d.HistoryLen("other"))
}

func TestNonNumericEventSkipsChecks(t *testing.T) {
	d := New(Config{})
	event := &types.SensorEvent{
		DeviceID:   "d1",
		SensorType: "generic",
		Fields:     map[string]any{"state": "open"},
	}
	assert.Empty(t, d.Process(event))
	assert.Equal(t, 0, d.HistoryLen("d1"))
}

func TestCheckSensorFailures(t *testing.T) {
	d := New(Config{})
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	stale := numericEvent("stale", "dht22", 20)
	stale.Timestamp = base.Add(-30 * time.Minute)
	d.Process(stale)

	fresh := numericEvent("fresh", "dht22", 21)
	fresh.Timestamp = base.Add(-time.Minute)
	d.Process(fresh)

	alerts := d.CheckSensorFailures(10 * time.Minute)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleSensorFailure, a.RuleID)
	assert.Equal(t, "stale", a.DeviceID)
	assert.Equal(t, "dht22", a.SensorType)
	assert.Equal(t, types.SeverityWarning, a.Severity)

	// Within timeout nothing is reported
	assert.Empty(t, d.CheckSensorFailures(time.Hour))
}
