// Package config loads, merges and validates engine configuration from JSON
// or YAML files with environment variable expansion.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/types"
)

// Config is the full engine configuration.
type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	NATS        NATSConfig        `json:"nats"`
	Metrics     MetricsConfig     `json:"metrics"`
	Worker      WorkerConfig      `json:"worker"`
	Anomaly     AnomalyConfig     `json:"anomaly"`
	Correlation CorrelationConfig `json:"correlation"`
	Notify      NotifyConfig      `json:"notify"`
	Rules       RulesConfig       `json:"rules"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// NATSConfig covers the connection, the ingest subject and the state bucket.
type NATSConfig struct {
	Enabled       bool           `json:"enabled"`
	URL           string         `json:"url"`
	Subject       string         `json:"subject"`
	StateBucket   string         `json:"state_bucket"`
	ClientName    string         `json:"client_name"`
	MaxReconnects int            `json:"max_reconnects"`
	ReconnectWait types.Duration `json:"reconnect_wait"`
	Username      string         `json:"username"`
	Password      string         `json:"password"`
	Token         string         `json:"token"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// WorkerConfig tunes the event pipeline.
type WorkerConfig struct {
	QueueSize            int            `json:"queue_size"`
	DispatchQueueSize    int            `json:"dispatch_queue_size"`
	SnapshotInterval     types.Duration `json:"snapshot_interval"`
	SensorFailureTimeout types.Duration `json:"sensor_failure_timeout"`
	SlowEventThreshold   types.Duration `json:"slow_event_threshold"`
}

// AnomalyConfig tunes the statistical detectors.
type AnomalyConfig struct {
	HistorySize      int     `json:"history_size"`
	SpikeMinPoints   int     `json:"spike_min_points"`
	SpikeStatsWindow int     `json:"spike_stats_window"`
	SpikeSigma       float64 `json:"spike_sigma"`
	FlatlineWindow   int     `json:"flatline_window"`
	FluctuationRatio float64 `json:"fluctuation_ratio"`
}

// CorrelationConfig tunes the cross-sensor tracker.
type CorrelationConfig struct {
	Window              types.Duration `json:"window"`
	StationaryMinBuffer int            `json:"stationary_min_buffer"`
	GasWarningLevel     float64        `json:"gas_warning_level"`
	GasCriticalLevel    float64        `json:"gas_critical_level"`
	BufferSize          int            `json:"buffer_size"`
}

// NotifyConfig configures the delivery channels.
type NotifyConfig struct {
	Email   EmailConfig   `json:"email"`
	SMS     SMSConfig     `json:"sms"`
	Webhook WebhookConfig `json:"webhook"`
}

// EmailConfig configures the email channel.
type EmailConfig struct {
	Recipients []string `json:"recipients"`
	SMTPHost   string   `json:"smtp_host"`
	SMTPPort   int      `json:"smtp_port"`
	From       string   `json:"from"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
}

// SMSConfig configures the SMS channel.
type SMSConfig struct {
	Recipients []string `json:"recipients"`
}

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	URLs    []string       `json:"urls"`
	Timeout types.Duration `json:"timeout"`
}

// RulesConfig points at the rule definitions imported on startup.
type RulesConfig struct {
	File string `json:"file"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		NATS: NATSConfig{
			Enabled:       true,
			URL:           "nats://localhost:4222",
			Subject:       "sensors.events",
			StateBucket:   "sentinel-state",
			ClientName:    "sentinel",
			MaxReconnects: -1,
			ReconnectWait: types.Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Worker: WorkerConfig{
			QueueSize:            1024,
			DispatchQueueSize:    256,
			SnapshotInterval:     types.Duration(30 * time.Second),
			SensorFailureTimeout: types.Duration(5 * time.Minute),
			SlowEventThreshold:   types.Duration(time.Second),
		},
		Anomaly: AnomalyConfig{
			HistorySize:      100,
			SpikeMinPoints:   5,
			SpikeStatsWindow: 10,
			SpikeSigma:       3.0,
			FlatlineWindow:   10,
			FluctuationRatio: 0.2,
		},
		Correlation: CorrelationConfig{
			Window:              types.Duration(time.Minute),
			StationaryMinBuffer: 5,
			GasWarningLevel:     300,
			GasCriticalLevel:    500,
			BufferSize:          100,
		},
		Notify: NotifyConfig{
			Webhook: WebhookConfig{Timeout: types.Duration(5 * time.Second)},
		},
	}
}

// Load reads the file at path, expands ${VAR} references from the
// environment, merges over defaults and validates the result. An empty path
// returns validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := loadRaw(path)
		if err != nil {
			return nil, err
		}
		merged, err := merge(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "load", "merge failed")
		}
		cfg = merged
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRaw reads and decodes a config file into a generic map. YAML files are
// detected by extension; everything else is treated as JSON.
func loadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "load", "read failed")
	}

	expanded := expandEnv(string(data))

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, errors.WrapInvalid(err, "config", "load", "yaml decode failed")
		}
		raw = normalizeYAML(raw)
	default:
		if err := json.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, errors.WrapInvalid(err, "config", "load", "json decode failed")
		}
	}
	return raw, nil
}

// expandEnv substitutes ${VAR} references. Unset variables expand to the
// empty string; a literal $ survives as $$.
func expandEnv(s string) string {
	s = strings.ReplaceAll(s, "$$", "\x00")
	s = os.Expand(s, func(name string) string {
		return os.Getenv(name)
	})
	return strings.ReplaceAll(s, "\x00", "$")
}

// merge deep-merges the raw map over the base config through a JSON
// round-trip so only keys present in the file override defaults.
func merge(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal base: %w", err)
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, fmt.Errorf("unmarshal base: %w", err)
	}

	mergedJSON, err := json.Marshal(deepMerge(baseMap, override))
	if err != nil {
		return nil, fmt.Errorf("marshal merged: %w", err)
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("unmarshal merged: %w", err)
	}
	return &merged, nil
}

func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// normalizeYAML converts yaml.v3's map[string]any values that may contain
// nested map[string]any with interface keys into pure string-keyed maps.
func normalizeYAML(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeYAML(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = normalizeYAMLValue(item)
		}
		return items
	default:
		return v
	}
}
