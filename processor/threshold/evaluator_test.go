package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/rules"
	"github.com/c360/sentinel/types"
)

type captureNotifier struct {
	alerts   []types.Alert
	channels [][]string
}

func (c *captureNotifier) Dispatch(alert types.Alert, channels []string) {
	c.alerts = append(c.alerts, alert)
	c.channels = append(c.channels, channels)
}

func storeWith(t *testing.T, ruleSet ...rules.Rule) *rules.Store {
	t.Helper()
	s := rules.NewStore()
	for _, r := range ruleSet {
		require.NoError(t, s.Add(r))
	}
	return s
}

func gasEvent(value float64) *types.SensorEvent {
	return &types.SensorEvent{
		DeviceID:   "d1",
		SensorType: "mq134",
		Timestamp:  time.Now().UTC(),
		Fields:     map[string]any{"gas_concentration": value},
	}
}

func TestEvaluateRaisesCriticalAlert(t *testing.T) {
	s := storeWith(t, rules.Rule{
		ID:         "gas_crit",
		SensorType: "mq134",
		Condition:  "gas_concentration > 500",
		Severity:   types.SeverityCritical,
		Channels:   []string{"email", "sms"},
		Enabled:    true,
	})
	notifier := &captureNotifier{}
	e := New(notifier)

	event := gasEvent(600)
	alerts := e.Evaluate(event, s.ForEvent(event))

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, "gas_crit", a.RuleID)
	assert.Equal(t, types.SeverityCritical, a.Severity)
	assert.Equal(t, 600.0, a.Value)
	assert.Equal(t, "CRITICAL: gas_crit - gas_concentration > 500 (value: 600)", a.Message)
	assert.Equal(t, "d1", a.DeviceID)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, []string{"email", "sms"}, notifier.channels[0])
}

func TestEvaluateNoMatchNoAlert(t *testing.T) {
	s := storeWith(t, rules.Rule{
		ID: "gas_crit", Condition: "gas_concentration > 500",
		Severity: types.SeverityCritical, Enabled: true,
	})
	e := New(nil)

	event := gasEvent(400)
	assert.Empty(t, e.Evaluate(event, s.ForEvent(event)))
}

func TestScopeMismatchSkipsRule(t *testing.T) {
	e := New(nil)
	scoped := rules.Rule{
		ID:         "temp_rule",
		SensorType: "dht22",
		Condition:  "gas_concentration > 0",
		Severity:   types.SeverityInfo,
		Enabled:    true,
	}
	// Bypass the store so the rule reaches Evaluate unfiltered
	alerts := e.Evaluate(gasEvent(600), []rules.Rule{scoped})
	assert.Empty(t, alerts)

	deviceScoped := rules.Rule{
		ID:       "other_device",
		DeviceID: "d2",
		Condition: "gas_concentration > 0",
		Severity: types.SeverityInfo,
		Enabled:  true,
	}
	assert.Empty(t, e.Evaluate(gasEvent(600), []rules.Rule{deviceScoped}))
}

func TestMissingFieldEvaluatesFalse(t *testing.T) {
	e := New(nil)
	rule := rules.Rule{
		ID:        "r",
		Condition: "pressure > 10",
		Severity:  types.SeverityWarning,
		Enabled:   true,
	}
	assert.Empty(t, e.Evaluate(gasEvent(600), []rules.Rule{rule}))
}

func TestUnparsableConditionDegradesSilently(t *testing.T) {
	e := New(nil)
	bad := rules.Rule{ID: "bad", Condition: "not a condition", Severity: types.SeverityInfo, Enabled: true}
	good := rules.Rule{ID: "good", Condition: "gas_concentration > 100", Severity: types.SeverityInfo, Enabled: true}

	alerts := e.Evaluate(gasEvent(600), []rules.Rule{bad, good})
	require.Len(t, alerts, 1)
	assert.Equal(t, "good", alerts[0].RuleID)
}

func TestThrottleWindow(t *testing.T) {
	s := storeWith(t, rules.Rule{
		ID:        "gas_crit",
		Condition: "gas_concentration > 500",
		Severity:  types.SeverityCritical,
		Throttle:  types.Duration(time.Minute),
		Enabled:   true,
	})
	e := New(nil)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	e.now = func() time.Time { return current }

	event := gasEvent(600)
	ruleSet := s.ForEvent(event)

	require.Len(t, e.Evaluate(event, ruleSet), 1)

	// Inside the window: suppressed
	current = base.Add(30 * time.Second)
	assert.Empty(t, e.Evaluate(event, ruleSet))

	// At the window boundary: fires again and opens a new window
	current = base.Add(time.Minute)
	require.Len(t, e.Evaluate(event, ruleSet), 1)
	current = base.Add(90 * time.Second)
	assert.Empty(t, e.Evaluate(event, ruleSet))
}

func TestThrottleKeyedByRuleIDOnly(t *testing.T) {
	s := storeWith(t, rules.Rule{
		ID:        "shared",
		Condition: "gas_concentration > 500",
		Severity:  types.SeverityWarning,
		Throttle:  types.Duration(time.Minute),
		Enabled:   true,
	})
	e := New(nil)

	e1 := gasEvent(600)
	e2 := gasEvent(600)
	e2.DeviceID = "d2"
	ruleSet := s.ForEvent(e1)

	require.Len(t, e.Evaluate(e1, ruleSet), 1)
	// A different device is still suppressed: throttle ignores device_id
	assert.Empty(t, e.Evaluate(e2, ruleSet))
}

func TestZeroThrottleNeverSuppresses(t *testing.T) {
	s := storeWith(t, rules.Rule{
		ID:        "r",
		Condition: "gas_concentration > 500",
		Severity:  types.SeverityInfo,
		Enabled:   true,
	})
	e := New(nil)
	event := gasEvent(600)
	ruleSet := s.ForEvent(event)

	require.Len(t, e.Evaluate(event, ruleSet), 1)
	require.Len(t, e.Evaluate(event, ruleSet), 1)
	assert.Empty(t, e.ThrottleState())
}
