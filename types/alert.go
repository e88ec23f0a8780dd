package types

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the alert severity level.
type Severity string

// Alert severity levels, lowest to highest.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities for escalation comparisons (info < warning < critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return -1
	}
}

// Severities lists the valid severity values.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityCritical}
}

// Alert is a single qualifying match produced by an evaluator. Alerts are
// transient: handed to the dispatcher, never mutated, never persisted here.
type Alert struct {
	ID         string         `json:"id"`
	RuleID     string         `json:"rule_id"`
	Severity   Severity       `json:"severity"`
	DeviceID   string         `json:"device_id"`
	SensorType string         `json:"sensor_type"`
	Location   string         `json:"location,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Value      float64        `json:"value"`
	Message    string         `json:"message"`
	Detector   string         `json:"detector"` // which evaluator raised it
	Channels   []string       `json:"channels,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Source     SensorEvent    `json:"source"`
}

// NewAlert creates an alert for the given event with a fresh id.
func NewAlert(ruleID string, severity Severity, event SensorEvent, value float64, message, detector string) Alert {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Alert{
		ID:         uuid.NewString(),
		RuleID:     ruleID,
		Severity:   severity,
		DeviceID:   event.DeviceID,
		SensorType: event.SensorType,
		Location:   event.LocationKey(),
		Timestamp:  ts,
		Value:      value,
		Message:    message,
		Detector:   detector,
		Source:     event,
	}
}
