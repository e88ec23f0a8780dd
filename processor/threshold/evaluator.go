// Package threshold evaluates compiled rule conditions against incoming
// events and raises throttled alerts. Malformed rules degrade silently:
// an unparsable condition or missing field evaluates to false, never aborts
// evaluation of the remaining rules.
package threshold

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360/sentinel/rules"
	"github.com/c360/sentinel/rules/expression"
	"github.com/c360/sentinel/types"
)

// Notifier receives each raised alert with its rule's channel set.
// Implementations must not block; the dispatcher runs delivery off the
// evaluation path.
type Notifier interface {
	Dispatch(alert types.Alert, channels []string)
}

// Evaluator applies threshold rules to events. Throttle state is keyed by
// rule_id only, not rule_id+device_id: a rule spanning many devices is
// suppressed globally once it fires.
type Evaluator struct {
	mu       sync.Mutex
	throttle map[string]time.Time // rule_id -> suppressed until
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a threshold evaluator. notifier may be nil when the caller
// routes the returned alerts itself.
func New(notifier Notifier) *Evaluator {
	return &Evaluator{
		throttle: make(map[string]time.Time),
		notifier: notifier,
		logger:   slog.Default().With("component", "threshold-evaluator"),
		now:      time.Now,
	}
}

// Evaluate checks every rule against the event and returns the raised
// alerts. Each alert is also handed to the notifier with the rule's channel
// set as a side effect.
func (e *Evaluator) Evaluate(event *types.SensorEvent, ruleSet []rules.Rule) []types.Alert {
	var alerts []types.Alert

	for i := range ruleSet {
		rule := &ruleSet[i]

		// Scope mismatch means the rule is skipped entirely, not
		// evaluated as false.
		if !rule.Matches(event) {
			continue
		}

		cond := rule.Compiled()
		if cond == nil {
			parsed, err := expression.Parse(rule.Condition)
			if err != nil {
				e.logger.Debug("skipping rule with unparsable condition",
					"rule_id", rule.ID, "condition", rule.Condition)
				continue
			}
			cond = parsed
		}

		matched, value, present := cond.Evaluate(event)
		if !present || !matched {
			continue
		}

		if e.throttled(rule) {
			continue
		}

		message := fmt.Sprintf("%s: %s - %s (value: %g)",
			strings.ToUpper(string(rule.Severity)), rule.ID, cond.String(), value)
		alert := types.NewAlert(rule.ID, rule.Severity, *event, value, message, "threshold")
		alert.Channels = append([]string(nil), rule.Channels...)

		alerts = append(alerts, alert)
		if e.notifier != nil {
			e.notifier.Dispatch(alert, alert.Channels)
		}
	}

	return alerts
}

// throttled reports whether the rule is inside its suppression window and,
// if not, opens a new window when the rule defines one.
func (e *Evaluator) throttled(rule *rules.Rule) bool {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if until, ok := e.throttle[rule.ID]; ok && now.Before(until) {
		return true
	}
	if rule.Throttle > 0 {
		e.throttle[rule.ID] = now.Add(rule.Throttle.Std())
	} else {
		delete(e.throttle, rule.ID)
	}
	return false
}

// ThrottleState returns a copy of the current suppression windows, for
// observability.
func (e *Evaluator) ThrottleState() map[string]time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]time.Time, len(e.throttle))
	for id, until := range e.throttle {
		out[id] = until
	}
	return out
}
