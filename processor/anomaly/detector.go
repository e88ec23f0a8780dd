// Package anomaly detects statistical anomalies in per-device sensor
// readings: spikes and drops against recent history, flatlines, out-of-range
// values, and rapid fluctuation. History is bounded per device; sensor
// failures are computed on demand from a last-seen map, not timer-driven.
package anomaly

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/c360/sentinel/pkg/buffer"
	"github.com/c360/sentinel/types"
)

// Synthetic rule ids attached to anomaly alerts so downstream dedup and
// delivery stats can group them.
const (
	RuleSpike         = "anomaly_spike"
	RuleDrop          = "anomaly_drop"
	RuleFlatline      = "anomaly_flatline"
	RuleOutOfRange    = "anomaly_out_of_range"
	RuleFluctuation   = "anomaly_fluctuation"
	RuleSensorFailure = "sensor_failure"
)

// Config tunes the detector windows. Zero fields take defaults.
type Config struct {
	HistorySize       int     `json:"history_size"`        // per-device ring capacity
	SpikeMinPoints    int     `json:"spike_min_points"`    // history entries required before spike/drop runs
	SpikeStatsWindow  int     `json:"spike_stats_window"`  // recent values for mean/stddev
	SpikeSigma        float64 `json:"spike_sigma"`         // stddev multiplier
	FlatlineWindow    int     `json:"flatline_window"`     // identical values to flag
	FluctuationWindow int     `json:"fluctuation_window"`  // values for successive diffs
	FluctuationRatio  float64 `json:"fluctuation_ratio"`   // diff average vs mean
}

// DefaultConfig returns the standard detector tuning.
func DefaultConfig() Config {
	return Config{
		HistorySize:       100,
		SpikeMinPoints:    5,
		SpikeStatsWindow:  10,
		SpikeSigma:        3.0,
		FlatlineWindow:    10,
		FluctuationWindow: 10,
		FluctuationRatio:  0.2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.SpikeMinPoints <= 0 {
		c.SpikeMinPoints = def.SpikeMinPoints
	}
	if c.SpikeStatsWindow <= 0 {
		c.SpikeStatsWindow = def.SpikeStatsWindow
	}
	if c.SpikeSigma <= 0 {
		c.SpikeSigma = def.SpikeSigma
	}
	if c.FlatlineWindow <= 0 {
		c.FlatlineWindow = def.FlatlineWindow
	}
	if c.FluctuationWindow <= 0 {
		c.FluctuationWindow = def.FluctuationWindow
	}
	if c.FluctuationRatio <= 0 {
		c.FluctuationRatio = def.FluctuationRatio
	}
	return c
}

// validRanges maps sensor types to their inclusive [min, max] valid range.
// Sensor types absent from the table are never flagged out-of-range.
var validRanges = map[string][2]float64{
	"gas":         {0, 1000},
	"mq134":       {0, 1000},
	"presence":    {0, 1},
	"motion":      {0, 1},
	"temperature": {-40, 85},
	"dht22":       {-40, 85},
	"humidity":    {0, 100},
	"distance":    {0, 400},
}

// deviceState is the per-device bookkeeping. Exclusively owned by the
// detector; event order per device must be preserved by the caller.
type deviceState struct {
	history    *buffer.Ring[float64]
	lastSeen   time.Time
	sensorType string
}

// Detector owns per-device history and raises anomaly alerts.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	devices map[string]*deviceState
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a detector with the given config.
func New(cfg Config) *Detector {
	return &Detector{
		cfg:     cfg.withDefaults(),
		devices: make(map[string]*deviceState),
		logger:  slog.Default().With("component", "anomaly-detector"),
		now:     time.Now,
	}
}

// Process runs every detector against the event and appends its value to the
// device history. Each detector independently contributes at most one alert.
func (d *Detector) Process(event *types.SensorEvent) []types.Alert {
	d.mu.Lock()
	state, ok := d.devices[event.DeviceID]
	if !ok {
		state = &deviceState{history: buffer.NewRing[float64](d.cfg.HistorySize)}
		d.devices[event.DeviceID] = state
	}
	state.sensorType = event.SensorType
	if !event.Timestamp.IsZero() {
		state.lastSeen = event.Timestamp
	} else {
		state.lastSeen = d.now()
	}
	d.mu.Unlock()

	value, ok := event.Numeric()
	if !ok {
		return nil
	}

	var alerts []types.Alert

	prior := state.history.Items()
	if a, flagged := d.checkSpikeDrop(event, value, prior); flagged {
		alerts = append(alerts, a)
	}
	if a, flagged := d.checkOutOfRange(event, value); flagged {
		alerts = append(alerts, a)
	}

	state.history.Append(value)
	window := state.history.Items()
	if a, flagged := d.checkFlatline(event, window); flagged {
		alerts = append(alerts, a)
	}
	if a, flagged := d.checkFluctuation(event, window); flagged {
		alerts = append(alerts, a)
	}

	return alerts
}

// checkSpikeDrop compares the current value against the mean and population
// standard deviation of the most recent prior values. Needs at least
// SpikeMinPoints of history and uses at most SpikeStatsWindow values; a zero
// stddev never flags.
func (d *Detector) checkSpikeDrop(event *types.SensorEvent, value float64, prior []float64) (types.Alert, bool) {
	if len(prior) < d.cfg.SpikeMinPoints {
		return types.Alert{}, false
	}
	window := prior
	if len(window) > d.cfg.SpikeStatsWindow {
		window = window[len(window)-d.cfg.SpikeStatsWindow:]
	}
	mean, stddev := meanStddev(window)
	if stddev == 0 {
		return types.Alert{}, false
	}

	upper := mean + d.cfg.SpikeSigma*stddev
	lower := mean - d.cfg.SpikeSigma*stddev

	switch {
	case value > upper:
		msg := fmt.Sprintf("WARNING: spike detected for %s: value %g exceeds mean %.2f + %.0f*stddev (stddev=%.2f)",
			event.DeviceID, value, mean, d.cfg.SpikeSigma, stddev)
		return types.NewAlert(RuleSpike, types.SeverityWarning, *event, value, msg, "anomaly"), true
	case value < lower:
		msg := fmt.Sprintf("WARNING: drop detected for %s: value %g below mean %.2f - %.0f*stddev (stddev=%.2f)",
			event.DeviceID, value, mean, d.cfg.SpikeSigma, stddev)
		return types.NewAlert(RuleDrop, types.SeverityWarning, *event, value, msg, "anomaly"), true
	}
	return types.Alert{}, false
}

// checkOutOfRange flags values outside the sensor type's fixed valid range.
// Bounds are inclusive-valid: a value exactly at min or max never flags.
func (d *Detector) checkOutOfRange(event *types.SensorEvent, value float64) (types.Alert, bool) {
	bounds, ok := validRanges[event.SensorType]
	if !ok {
		return types.Alert{}, false
	}
	if value >= bounds[0] && value <= bounds[1] {
		return types.Alert{}, false
	}
	msg := fmt.Sprintf("CRITICAL: value %g for %s outside valid range [%g, %g]",
		value, event.SensorType, bounds[0], bounds[1])
	return types.NewAlert(RuleOutOfRange, types.SeverityCritical, *event, value, msg, "anomaly"), true
}

// checkFlatline flags a window of identical consecutive values, current
// value included.
func (d *Detector) checkFlatline(event *types.SensorEvent, window []float64) (types.Alert, bool) {
	if len(window) < d.cfg.FlatlineWindow {
		return types.Alert{}, false
	}
	tail := window[len(window)-d.cfg.FlatlineWindow:]
	for _, v := range tail[1:] {
		if v != tail[0] {
			return types.Alert{}, false
		}
	}
	msg := fmt.Sprintf("WARNING: flatline for %s: last %d readings identical at %g",
		event.DeviceID, d.cfg.FlatlineWindow, tail[0])
	return types.NewAlert(RuleFlatline, types.SeverityWarning, *event, tail[0], msg, "anomaly"), true
}

// checkFluctuation flags when the average absolute successive difference over
// the window exceeds the configured share of the window mean. Guarded against
// non-positive means.
func (d *Detector) checkFluctuation(event *types.SensorEvent, window []float64) (types.Alert, bool) {
	if len(window) < d.cfg.FluctuationWindow {
		return types.Alert{}, false
	}
	tail := window[len(window)-d.cfg.FluctuationWindow:]

	mean, _ := meanStddev(tail)
	if mean <= 0 {
		return types.Alert{}, false
	}

	var diffSum float64
	for i := 1; i < len(tail); i++ {
		diffSum += math.Abs(tail[i] - tail[i-1])
	}
	avgDiff := diffSum / float64(len(tail)-1)
	if avgDiff <= d.cfg.FluctuationRatio*mean {
		return types.Alert{}, false
	}

	msg := fmt.Sprintf("WARNING: rapid fluctuation for %s: average delta %.2f exceeds %.0f%% of mean %.2f",
		event.DeviceID, avgDiff, d.cfg.FluctuationRatio*100, mean)
	return types.NewAlert(RuleFluctuation, types.SeverityWarning, *event, avgDiff, msg, "anomaly"), true
}

// CheckSensorFailures returns one warning alert per device that has not
// reported within the timeout. Computed on demand from the last-seen map.
func (d *Detector) CheckSensorFailures(timeout time.Duration) []types.Alert {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var alerts []types.Alert
	for deviceID, state := range d.devices {
		if state.lastSeen.IsZero() {
			continue
		}
		silence := now.Sub(state.lastSeen)
		if silence <= timeout {
			continue
		}
		event := types.SensorEvent{
			DeviceID:   deviceID,
			SensorType: state.sensorType,
			Timestamp:  now,
		}
		msg := fmt.Sprintf("WARNING: no data from %s for %s (timeout %s)",
			deviceID, silence.Round(time.Second), timeout)
		alerts = append(alerts, types.NewAlert(
			RuleSensorFailure, types.SeverityWarning, event, silence.Seconds(), msg, "anomaly"))
	}
	return alerts
}

// HistoryLen reports the retained history length for a device, for tests and
// observability.
func (d *Detector) HistoryLen(deviceID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.devices[deviceID]
	if !ok {
		return 0
	}
	return state.history.Len()
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqSum float64
	for _, v := range values {
		diff := v - mean
		sqSum += diff * diff
	}
	return mean, math.Sqrt(sqSum / float64(len(values)))
}
