package rules

import (
	"encoding/json"
	"sort"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/types"
)

// Template is a named, pre-validated rule blueprint. Instantiation applies
// caller overrides on top of the base definition and re-validates the result.
type Template struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Base        Rule   `json:"base"`
}

// templates is the fixed catalog of rule blueprints covering the common
// sensor alerting setups: gas thresholds, motion/presence, and
// temperature/humidity bounds.
var templates = map[string]Template{
	"gas_warning": {
		Name:        "gas_warning",
		Description: "Elevated gas concentration",
		Base: Rule{
			ID:         "gas_warning",
			SensorType: "mq134",
			Condition:  "gas_concentration > 300",
			Severity:   types.SeverityWarning,
			Channels:   []string{"email"},
			Enabled:    true,
		},
	},
	"gas_critical": {
		Name:        "gas_critical",
		Description: "Dangerous gas concentration",
		Base: Rule{
			ID:         "gas_critical",
			SensorType: "mq134",
			Condition:  "gas_concentration > 500",
			Severity:   types.SeverityCritical,
			Channels:   []string{"email", "sms"},
			Enabled:    true,
		},
	},
	"motion_detected": {
		Name:        "motion_detected",
		Description: "Motion sensor tripped",
		Base: Rule{
			ID:         "motion_detected",
			SensorType: "motion",
			Condition:  "value > 0",
			Severity:   types.SeverityInfo,
			Channels:   []string{"webhook"},
			Enabled:    true,
		},
	},
	"presence_detected": {
		Name:        "presence_detected",
		Description: "Presence sensor positive",
		Base: Rule{
			ID:         "presence_detected",
			SensorType: "presence",
			Condition:  "value > 0",
			Severity:   types.SeverityInfo,
			Channels:   []string{"webhook"},
			Enabled:    true,
		},
	},
	"temperature_high": {
		Name:        "temperature_high",
		Description: "Temperature above safe bound",
		Base: Rule{
			ID:         "temperature_high",
			SensorType: "dht22",
			Condition:  "temperature > 35",
			Severity:   types.SeverityWarning,
			Channels:   []string{"email"},
			Enabled:    true,
		},
	},
	"temperature_low": {
		Name:        "temperature_low",
		Description: "Temperature below safe bound",
		Base: Rule{
			ID:         "temperature_low",
			SensorType: "dht22",
			Condition:  "temperature < 5",
			Severity:   types.SeverityWarning,
			Channels:   []string{"email"},
			Enabled:    true,
		},
	},
	"humidity_high": {
		Name:        "humidity_high",
		Description: "Humidity above bound",
		Base: Rule{
			ID:         "humidity_high",
			SensorType: "dht22",
			Condition:  "humidity > 70",
			Severity:   types.SeverityInfo,
			Channels:   []string{"email"},
			Enabled:    true,
		},
	},
	"humidity_low": {
		Name:        "humidity_low",
		Description: "Humidity below bound",
		Base: Rule{
			ID:         "humidity_low",
			SensorType: "dht22",
			Condition:  "humidity < 20",
			Severity:   types.SeverityInfo,
			Channels:   []string{"email"},
			Enabled:    true,
		},
	},
}

// Templates returns the catalog, ordered by name.
func Templates() []Template {
	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InstantiateTemplate builds a rule from a named template with field
// overrides applied as a JSON merge, then validates the result. Unknown
// template names fail with a NotFoundError.
func InstantiateTemplate(name string, overrides map[string]any) (Rule, error) {
	tmpl, ok := templates[name]
	if !ok {
		return Rule{}, &errors.NotFoundError{Kind: "template", ID: name}
	}

	base, err := json.Marshal(tmpl.Base)
	if err != nil {
		return Rule{}, errors.Wrap(err, "rules", "InstantiateTemplate", "encode base")
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return Rule{}, errors.Wrap(err, "rules", "InstantiateTemplate", "decode base")
	}
	for k, v := range overrides {
		merged[k] = v
	}
	combined, err := json.Marshal(merged)
	if err != nil {
		return Rule{}, errors.Wrap(err, "rules", "InstantiateTemplate", "encode merged")
	}

	var rule Rule
	if err := json.Unmarshal(combined, &rule); err != nil {
		return Rule{}, errors.WrapInvalid(err, "rules", "InstantiateTemplate", "decode merged rule")
	}
	if err := rule.validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// AddFromTemplate instantiates a template and stores the result.
func (s *Store) AddFromTemplate(name string, overrides map[string]any) (Rule, error) {
	rule, err := InstantiateTemplate(name, overrides)
	if err != nil {
		return Rule{}, err
	}
	if err := s.Add(rule); err != nil {
		return Rule{}, err
	}
	return rule, nil
}
