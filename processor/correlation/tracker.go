// Package correlation maintains per-location event windows and occupancy
// state, and raises multi-sensor pattern alerts: confirmed occupancy,
// stationary presence, gas in an occupied location, and combined multi-sensor
// anomalies. Buffers are purged by time horizon on every call; occupancy is
// the only state that persists indefinitely.
package correlation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/sentinel/pkg/buffer"
	"github.com/c360/sentinel/types"
)

// Synthetic rule ids for correlation alerts.
const (
	RuleOccupancyChange    = "occupancy_change"
	RuleConfirmedOccupancy = "confirmed_occupancy"
	RuleStationaryPresence = "stationary_presence"
	RuleGasOccupied        = "gas_with_occupancy"
	RuleMultiSensor        = "multi_sensor_anomaly"
)

// Config tunes the correlation windows. Zero fields take defaults. The
// stationary-presence buffer minimum and the window are configuration, not
// invariants.
type Config struct {
	Window              types.Duration `json:"window"`                // co-occurrence span
	StationaryMinBuffer int            `json:"stationary_min_buffer"` // entries before stationary presence fires
	GasWarningLevel     float64        `json:"gas_warning_level"`
	GasCriticalLevel    float64        `json:"gas_critical_level"`
	BufferSize          int            `json:"buffer_size"` // per-location ring capacity
}

// DefaultConfig returns the standard correlation tuning.
func DefaultConfig() Config {
	return Config{
		Window:              types.Duration(60 * time.Second),
		StationaryMinBuffer: 5,
		GasWarningLevel:     300,
		GasCriticalLevel:    500,
		BufferSize:          100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.StationaryMinBuffer <= 0 {
		c.StationaryMinBuffer = def.StationaryMinBuffer
	}
	if c.GasWarningLevel <= 0 {
		c.GasWarningLevel = def.GasWarningLevel
	}
	if c.GasCriticalLevel <= 0 {
		c.GasCriticalLevel = def.GasCriticalLevel
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	return c
}

// entry is one buffered event with the severity it already earned from the
// threshold/anomaly evaluators, and its reading interpretation.
type entry struct {
	deviceID   string
	sensorType string
	at         time.Time
	positive   bool
	severity   types.Severity // "" when no earlier evaluator flagged the event
}

// locationState is the per-location buffer plus the persistent occupancy flag.
type locationState struct {
	buf      *buffer.Ring[entry]
	occupied bool
}

// Tracker owns per-location buffers and occupancy state.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	locations map[string]*locationState
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a tracker with the given config.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:       cfg.withDefaults(),
		locations: make(map[string]*locationState),
		logger:    slog.Default().With("component", "correlation-tracker"),
		now:       time.Now,
	}
}

// Process evaluates the correlation rules for the event's location.
// priorSeverity is the highest severity the threshold/anomaly evaluators
// already assigned to this event, or empty; it feeds the multi-sensor rule.
func (t *Tracker) Process(event *types.SensorEvent, priorSeverity types.Severity) []types.Alert {
	at := event.Timestamp
	if at.IsZero() {
		at = t.now()
	}
	locKey := event.LocationKey()

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.locations[locKey]
	if !ok {
		state = &locationState{buf: buffer.NewRing[entry](t.cfg.BufferSize)}
		t.locations[locKey] = state
	}

	// Entries older than twice the correlation window are purged on every call.
	horizon := at.Add(-2 * t.cfg.Window.Std())
	state.buf.RemoveIf(func(e entry) bool { return e.at.Before(horizon) })

	state.buf.Append(entry{
		deviceID:   event.DeviceID,
		sensorType: event.SensorType,
		at:         at,
		positive:   readingPositive(event),
		severity:   priorSeverity,
	})

	var alerts []types.Alert

	if a, changed := t.applyOccupancy(state, event, at); changed {
		alerts = append(alerts, a)
	}

	cutoff := at.Add(-t.cfg.Window.Std())
	window := state.buf.Items()

	switch event.SensorType {
	case "presence", "motion":
		if a, fired := t.checkConfirmedOccupancy(window, cutoff, event, locKey); fired {
			alerts = append(alerts, a)
		}
	}
	if event.SensorType == "presence" {
		if a, fired := t.checkStationaryPresence(state, window, cutoff, event, locKey); fired {
			alerts = append(alerts, a)
		}
	}
	if value, isGas := gasReading(event); isGas {
		if a, fired := t.checkGasOccupied(state, event, locKey, value); fired {
			alerts = append(alerts, a)
		}
	}
	if a, fired := t.checkMultiSensor(window, cutoff, event, locKey); fired {
		alerts = append(alerts, a)
	}

	return alerts
}

// applyOccupancy updates the location's occupancy flag. Presence readings
// write their boolean directly; motion readings can only set the flag, never
// clear it. An alert fires only when the flag actually changes.
func (t *Tracker) applyOccupancy(state *locationState, event *types.SensorEvent, at time.Time) (types.Alert, bool) {
	positive := readingPositive(event)

	next := state.occupied
	switch event.SensorType {
	case "presence":
		next = positive
	case "motion":
		if positive {
			next = true
		}
	default:
		return types.Alert{}, false
	}

	if next == state.occupied {
		return types.Alert{}, false
	}
	state.occupied = next

	locKey := event.LocationKey()
	verb := "vacated"
	if next {
		verb = "occupied"
	}
	t.logger.Debug("occupancy changed", "location", locKey, "occupied", next)

	msg := fmt.Sprintf("INFO: location %s is now %s", locKey, verb)
	a := types.NewAlert(RuleOccupancyChange, types.SeverityInfo, *event, boolValue(next), msg, "correlation")
	a.Metadata = map[string]any{"occupied": next}
	return a, true
}

// checkConfirmedOccupancy fires when both a presence-positive and a
// motion-positive event exist for the location within the window.
func (t *Tracker) checkConfirmedOccupancy(window []entry, cutoff time.Time, event *types.SensorEvent, locKey string) (types.Alert, bool) {
	var presence, motion bool
	for _, e := range window {
		if e.at.Before(cutoff) || !e.positive {
			continue
		}
		switch e.sensorType {
		case "presence":
			presence = true
		case "motion":
			motion = true
		}
	}
	if !presence || !motion {
		return types.Alert{}, false
	}

	msg := fmt.Sprintf("INFO: occupancy at %s confirmed by presence and motion", locKey)
	a := types.NewAlert(RuleConfirmedOccupancy, types.SeverityInfo, *event, 1, msg, "correlation")
	a.Metadata = map[string]any{"confidence": "high"}
	return a, true
}

// checkStationaryPresence fires when presence is positive with no motion in
// the window and the buffer has accumulated beyond the configured minimum.
// Deliberately ambiguous between a motionless occupant and a stuck sensor.
func (t *Tracker) checkStationaryPresence(state *locationState, window []entry, cutoff time.Time, event *types.SensorEvent, locKey string) (types.Alert, bool) {
	if !readingPositive(event) {
		return types.Alert{}, false
	}
	for _, e := range window {
		if !e.at.Before(cutoff) && e.positive && e.sensorType == "motion" {
			return types.Alert{}, false
		}
	}
	if state.buf.Len() <= t.cfg.StationaryMinBuffer {
		return types.Alert{}, false
	}

	msg := fmt.Sprintf("INFO: stationary presence at %s: presence without motion", locKey)
	a := types.NewAlert(RuleStationaryPresence, types.SeverityInfo, *event, 1, msg, "correlation")
	a.Metadata = map[string]any{"confidence": "medium"}
	return a, true
}

// checkGasOccupied fires for gas readings above the warning level in an
// occupied location; the critical level escalates the channel set to add sms.
func (t *Tracker) checkGasOccupied(state *locationState, event *types.SensorEvent, locKey string, value float64) (types.Alert, bool) {
	if !state.occupied || value < t.cfg.GasWarningLevel {
		return types.Alert{}, false
	}

	severity := types.SeverityWarning
	if value >= t.cfg.GasCriticalLevel {
		severity = types.SeverityCritical
	}
	msg := fmt.Sprintf("%s: gas level %g at occupied location %s",
		severityLabel(severity), value, locKey)
	a := types.NewAlert(RuleGasOccupied, severity, *event, value, msg, "correlation")
	if severity == types.SeverityCritical {
		a.Channels = []string{"email", "sms"}
	}
	return a, true
}

// checkMultiSensor fires when at least two distinct sensor types reported in
// the window and at least two buffered events already carry warning or
// critical severity.
func (t *Tracker) checkMultiSensor(window []entry, cutoff time.Time, event *types.SensorEvent, locKey string) (types.Alert, bool) {
	sensorTypes := make(map[string]struct{})
	flagged := 0
	for _, e := range window {
		if e.at.Before(cutoff) {
			continue
		}
		sensorTypes[e.sensorType] = struct{}{}
		if e.severity.Rank() >= types.SeverityWarning.Rank() {
			flagged++
		}
	}
	if len(sensorTypes) < 2 || flagged < 2 {
		return types.Alert{}, false
	}

	msg := fmt.Sprintf("CRITICAL: %d anomalous events across %d sensor types at %s",
		flagged, len(sensorTypes), locKey)
	a := types.NewAlert(RuleMultiSensor, types.SeverityCritical, *event, float64(flagged), msg, "correlation")
	a.Metadata = map[string]any{"sensor_types": len(sensorTypes)}
	return a, true
}

// Occupied reports the current occupancy flag for a location.
func (t *Tracker) Occupied(location string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.locations[location]
	return ok && state.occupied
}

// OccupancySnapshot returns the occupancy flag for every tracked location.
func (t *Tracker) OccupancySnapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make(map[string]bool, len(t.locations))
	for loc, state := range t.locations {
		snap[loc] = state.occupied
	}
	return snap
}

// BufferLen reports the retained buffer length for a location, for tests and
// observability.
func (t *Tracker) BufferLen(location string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.locations[location]
	if !ok {
		return 0
	}
	return state.buf.Len()
}

// readingPositive interprets the event's reading as a boolean: the "value"
// field when present, otherwise the representative numeric value.
func readingPositive(event *types.SensorEvent) bool {
	if v, ok := event.Lookup("value"); ok {
		return v.Truthy()
	}
	if v, ok := event.Lookup(event.SensorType); ok {
		return v.Truthy()
	}
	if f, ok := event.Numeric(); ok {
		return f > 0
	}
	return false
}

// gasReading returns the gas concentration when the event is a gas reading.
func gasReading(event *types.SensorEvent) (float64, bool) {
	if v, ok := event.Lookup("gas_concentration"); ok {
		if f, isNum := v.Float(); isNum {
			return f, true
		}
	}
	if event.SensorType == "gas" || event.SensorType == "mq134" {
		if f, ok := event.Numeric(); ok {
			return f, true
		}
	}
	return 0, false
}

func severityLabel(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "CRITICAL"
	case types.SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
