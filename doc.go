// Package sentinel is a real-time rule-based alerting and correlation engine
// for IoT sensor events.
//
// Events arrive as normalized JSON over NATS and flow through three
// detection stages: user-defined threshold rules with a compiled condition
// DSL, statistical anomaly detection over per-device history, and
// cross-sensor correlation over per-location windows. Raised alerts are
// deduplicated and delivered across email, SMS, webhook and (placeholder)
// push channels, with every delivery outcome recorded.
//
// Package layout:
//
//   - cmd/sentinel: the binary, configuration and logging setup
//   - rules, rules/expression: rule store, templates, condition compiler
//   - processor/threshold, processor/anomaly, processor/correlation: the
//     detection stages
//   - notify: delivery channels and the deduplicating dispatcher
//   - worker: the event pipeline and async dispatch queue
//   - input/natsingest, natsclient, statestore: the NATS boundary
//   - metric, config, errors, types: shared infrastructure
package sentinel
