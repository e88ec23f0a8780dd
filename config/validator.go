package config

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/sentinel/errors"
)

// configSchema constrains the merged configuration. Validation runs against
// the JSON form so YAML and JSON files are held to the same contract.
const configSchema = `{
  "type": "object",
  "properties": {
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["json", "text"]}
      }
    },
    "nats": {
      "type": "object",
      "properties": {
        "url": {"type": "string", "minLength": 1},
        "subject": {"type": "string", "minLength": 1},
        "state_bucket": {"type": "string", "minLength": 1},
        "max_reconnects": {"type": "integer", "minimum": -1}
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "path": {"type": "string"}
      }
    },
    "worker": {
      "type": "object",
      "properties": {
        "queue_size": {"type": "integer", "minimum": 1},
        "dispatch_queue_size": {"type": "integer", "minimum": 1}
      }
    },
    "anomaly": {
      "type": "object",
      "properties": {
        "history_size": {"type": "integer", "minimum": 2},
        "spike_min_points": {"type": "integer", "minimum": 2},
        "spike_stats_window": {"type": "integer", "minimum": 2},
        "spike_sigma": {"type": "number", "exclusiveMinimum": 0},
        "flatline_window": {"type": "integer", "minimum": 2},
        "fluctuation_ratio": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "correlation": {
      "type": "object",
      "properties": {
        "stationary_min_buffer": {"type": "integer", "minimum": 1},
        "gas_warning_level": {"type": "number", "minimum": 0},
        "gas_critical_level": {"type": "number", "minimum": 0},
        "buffer_size": {"type": "integer", "minimum": 1}
      }
    },
    "notify": {
      "type": "object",
      "properties": {
        "webhook": {
          "type": "object",
          "properties": {
            "urls": {"type": "array", "items": {"type": "string", "format": "uri"}}
          }
        }
      }
    }
  }
}`

// Validate checks the configuration against the embedded schema plus
// cross-field rules, reporting every violation at once.
func (c *Config) Validate() error {
	verr := errors.NewValidationError("config")

	doc, err := json.Marshal(c)
	if err != nil {
		return errors.WrapInvalid(err, "config", "validate", "encode failed")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return errors.WrapFatal(err, "config", "validate", "schema evaluation failed")
	}

	for _, desc := range result.Errors() {
		verr.Add(desc.Field(), desc.Description())
	}

	if c.Correlation.GasCriticalLevel < c.Correlation.GasWarningLevel {
		verr.Add("correlation.gas_critical_level",
			"must be greater than or equal to gas_warning_level")
	}
	if c.Worker.SlowEventThreshold <= 0 {
		verr.Add("worker.slow_event_threshold", "must be positive")
	}
	if c.Correlation.Window <= 0 {
		verr.Add("correlation.window", "must be positive")
	}

	if verr.HasViolations() {
		return verr
	}
	return nil
}
