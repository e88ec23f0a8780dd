// Package rules implements the rule store: validated threshold rule
// definitions, list/filter/match lookups, bulk import/export, and a fixed
// catalog of instantiable templates. All operations are synchronous and
// perform no I/O; persistence belongs to an external management collaborator.
package rules

import (
	"time"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/rules/expression"
	"github.com/c360/sentinel/types"
)

// Rule is an operator-defined threshold rule. SensorType and DeviceID are
// optional scopes: unset means the rule applies to any event.
type Rule struct {
	ID          string         `json:"id"`
	Description string         `json:"description,omitempty"`
	SensorType  string         `json:"sensor_type,omitempty"`
	DeviceID    string         `json:"device_id,omitempty"`
	Condition   string         `json:"condition"`
	Severity    types.Severity `json:"severity"`
	Channels    []string       `json:"channels,omitempty"`
	Throttle    types.Duration `json:"throttle,omitempty"`
	Enabled     bool           `json:"enabled"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`

	compiled *expression.Condition
}

// Compiled returns the compiled condition AST, or nil for a rule that has not
// passed through Store.Add (store rules are always compiled).
func (r *Rule) Compiled() *expression.Condition {
	return r.compiled
}

// Matches reports whether the rule's scope accepts the event. A set
// sensor_type or device_id must equal the event's; unset matches any.
func (r *Rule) Matches(event *types.SensorEvent) bool {
	if r.SensorType != "" && r.SensorType != event.SensorType {
		return false
	}
	if r.DeviceID != "" && r.DeviceID != event.DeviceID {
		return false
	}
	return true
}

// clone returns a copy safe to hand to callers. The compiled condition is
// immutable and shared.
func (r *Rule) clone() Rule {
	cp := *r
	if r.Channels != nil {
		cp.Channels = append([]string(nil), r.Channels...)
	}
	return cp
}

// validate checks every rule field and returns a ValidationError listing all
// violations; a rule that fails validation is never partially applied. On
// success the rule's condition is compiled in place.
func (r *Rule) validate() error {
	ve := errors.NewValidationError(r.ID)

	if r.ID == "" {
		ve.Add("id", "is required")
	}

	if r.Condition == "" {
		ve.Add("condition", "is required")
	} else {
		compiled, err := expression.Parse(r.Condition)
		if err != nil {
			ve.Add("condition", err.Error())
		} else {
			r.compiled = compiled
		}
	}

	if !r.Severity.Valid() {
		ve.Add("severity", "must be one of info, warning, critical")
	}

	for _, ch := range r.Channels {
		if ch == "" {
			ve.Add("channels", "entries must be non-empty names")
			break
		}
	}

	if r.Throttle < 0 {
		ve.Add("throttle", "must be >= 0")
	}

	if ve.HasViolations() {
		return ve
	}
	return nil
}
