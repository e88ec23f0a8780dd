package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration with friendlier JSON/YAML handling: it accepts
// either a Go duration string ("30s", "5m") or a plain number of seconds, and
// always marshals as a duration string.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the Go duration string form.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.decode(raw)
}

// UnmarshalYAML implements yaml.Unmarshaler via the generic decode hook.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return d.decode(raw)
}

func (d *Duration) decode(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	case int:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v (%T)", raw, raw)
	}
}
