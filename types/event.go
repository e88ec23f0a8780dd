// Package types defines the shared data model for Sentinel: normalized sensor
// events, alerts, severities, and typed field access into loosely structured
// event payloads.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// SensorEvent is one normalized reading from a device at a point in time.
// Events are immutable once received; components take copies, never mutate.
type SensorEvent struct {
	DeviceID   string         `json:"device_id"`
	SensorType string         `json:"sensor_type"`
	Location   string         `json:"location,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// numericCandidates is the ordered list of field names checked when a single
// representative numeric value is needed for an event.
var numericCandidates = []string{
	"value", "reading", "gas_concentration", "temperature", "humidity", "distance",
}

// LocationKey returns the event's location, defaulting to the device id.
func (e *SensorEvent) LocationKey() string {
	if e.Location != "" {
		return e.Location
	}
	return e.DeviceID
}

// Lookup resolves a dot-separated path against the event's fields,
// descending into nested maps. The second return is false when any path
// segment is absent or a non-map is traversed.
func (e *SensorEvent) Lookup(path string) (Value, bool) {
	if path == "" || e.Fields == nil {
		return Value{}, false
	}

	segments := strings.Split(path, ".")
	var current any = e.Fields
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return Value{}, false
		}
		current, ok = m[seg]
		if !ok {
			return Value{}, false
		}
	}
	return Value{raw: current}, true
}

// Numeric returns the event's representative numeric value: the first
// present numeric field among the fixed candidate list.
func (e *SensorEvent) Numeric() (float64, bool) {
	for _, name := range numericCandidates {
		if v, ok := e.Lookup(name); ok {
			if f, isNum := v.Float(); isNum {
				return f, true
			}
		}
	}
	return 0, false
}

// NumericField returns the name and value of the first present numeric
// candidate field, for alert messages that cite the triggering field.
func (e *SensorEvent) NumericField() (string, float64, bool) {
	for _, name := range numericCandidates {
		if v, ok := e.Lookup(name); ok {
			if f, isNum := v.Float(); isNum {
				return name, f, true
			}
		}
	}
	return "", 0, false
}

// envelope mirrors the known SensorEvent keys for JSON round-tripping.
// Every other top-level key lands in Fields.
var envelopeKeys = map[string]struct{}{
	"device_id":   {},
	"sensor_type": {},
	"location":    {},
	"timestamp":   {},
	"fields":      {},
}

// UnmarshalJSON accepts both the enveloped form ({"fields": {...}}) and the
// flat form ingestion produces, where readings sit beside the identity keys:
// {"device_id":"d1","sensor_type":"mq134","gas_concentration":600}.
func (e *SensorEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias SensorEvent
	var env alias
	if err := json.Unmarshal(data, &env); err != nil {
		// Timestamp may be a unix number rather than RFC3339; retry without it
		delete(raw, "timestamp")
		flat, merr := json.Marshal(raw)
		if merr != nil {
			return err
		}
		if uerr := json.Unmarshal(flat, &env); uerr != nil {
			return err
		}
		var unix float64
		if ts, ok := raw["timestamp"]; ok && json.Unmarshal(ts, &unix) == nil {
			sec := int64(unix)
			nsec := int64((unix - float64(sec)) * float64(time.Second))
			env.Timestamp = time.Unix(sec, nsec).UTC()
		}
	}
	*e = SensorEvent(env)

	for key, val := range raw {
		if _, known := envelopeKeys[key]; known {
			continue
		}
		var field any
		if err := json.Unmarshal(val, &field); err != nil {
			return err
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[key] = field
	}
	return nil
}

// Value is a tagged wrapper over a loosely typed event field.
type Value struct {
	raw any
}

// NewValue wraps a raw field value.
func NewValue(raw any) Value {
	return Value{raw: raw}
}

// Raw returns the underlying value.
func (v Value) Raw() any {
	return v.raw
}

// Float returns the value as a float64 if it is numeric.
func (v Value) Float() (float64, bool) {
	switch val := v.raw.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the value as a bool if it is boolean.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// Truthy interprets the value as a sensor reading: booleans verbatim,
// numbers positive-is-true. Non-boolean non-numeric values are false.
func (v Value) Truthy() bool {
	if b, ok := v.Bool(); ok {
		return b
	}
	if f, ok := v.Float(); ok {
		return f > 0
	}
	return false
}
