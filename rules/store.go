package rules

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/types"
)

// ListFilter selects rules in List. Zero-valued fields are ignored; set
// fields are AND-combined.
type ListFilter struct {
	SensorType string
	DeviceID   string
	Severity   types.Severity
	Enabled    *bool
}

// ImportError records why one rule of a bulk import was rejected.
type ImportError struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}

// ImportResult summarizes a bulk import. Each rule is validated
// independently; one bad rule never blocks the others.
type ImportResult struct {
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// Stats reports rule counts for the management surface.
type Stats struct {
	Total        int                    `json:"total"`
	Enabled      int                    `json:"enabled"`
	Disabled     int                    `json:"disabled"`
	BySeverity   map[types.Severity]int `json:"by_severity"`
	BySensorType map[string]int         `json:"by_sensor_type"`
}

// Store holds rule definitions in memory, keyed by unique id. It is safe for
// concurrent use; evaluators read through ForEvent while a management
// collaborator mutates.
type Store struct {
	mu     sync.RWMutex
	rules  map[string]*Rule
	logger *slog.Logger
}

// NewStore creates an empty rule store.
func NewStore() *Store {
	return &Store{
		rules:  make(map[string]*Rule),
		logger: slog.Default().With("component", "rule-store"),
	}
}

// Add validates and stores a rule, compiling its condition. An existing rule
// with the same id is replaced; rejected rules leave the store untouched.
func (s *Store) Add(rule Rule) error {
	if err := rule.validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	rule.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rules[rule.ID]; ok {
		rule.CreatedAt = existing.CreatedAt
		s.logger.Info("rule replaced", "rule_id", rule.ID)
	} else {
		rule.CreatedAt = now
		s.logger.Info("rule added", "rule_id", rule.ID, "severity", rule.Severity)
	}

	s.rules[rule.ID] = &rule
	return nil
}

// Get returns a copy of the rule with the given id.
func (s *Store) Get(id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return Rule{}, &errors.NotFoundError{Kind: "rule", ID: id}
	}
	return rule.clone(), nil
}

// Delete removes the rule with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return &errors.NotFoundError{Kind: "rule", ID: id}
	}
	delete(s.rules, id)
	s.logger.Info("rule deleted", "rule_id", id)
	return nil
}

// Toggle enables or disables the rule with the given id.
func (s *Store) Toggle(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return &errors.NotFoundError{Kind: "rule", ID: id}
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now().UTC()
	return nil
}

// List returns copies of the rules matching the filter, ordered by id.
func (s *Store) List(filter ListFilter) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Rule
	for _, rule := range s.rules {
		if filter.SensorType != "" && rule.SensorType != filter.SensorType {
			continue
		}
		if filter.DeviceID != "" && rule.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Severity != "" && rule.Severity != filter.Severity {
			continue
		}
		if filter.Enabled != nil && rule.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, rule.clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ForEvent returns enabled rules whose scope accepts the event: sensor_type
// and device_id each either match or are unset.
func (s *Store) ForEvent(event *types.SensorEvent) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Rule
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		if rule.Matches(event) {
			out = append(out, rule.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BulkImport validates each rule independently and applies the valid ones.
func (s *Store) BulkImport(rules []Rule) ImportResult {
	var result ImportResult
	for _, rule := range rules {
		if err := s.Add(rule); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportError{RuleID: rule.ID, Error: err.Error()})
			continue
		}
		result.Imported++
	}
	s.logger.Info("bulk import finished", "imported", result.Imported, "failed", result.Failed)
	return result
}

// Export returns copies of every rule, ordered by id.
func (s *Store) Export() []Rule {
	return s.List(ListFilter{})
}

// GetStats returns rule counts grouped by state, severity and sensor type.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		BySeverity:   make(map[types.Severity]int),
		BySensorType: make(map[string]int),
	}
	for _, rule := range s.rules {
		stats.Total++
		if rule.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		stats.BySeverity[rule.Severity]++
		if rule.SensorType != "" {
			stats.BySensorType[rule.SensorType]++
		}
	}
	return stats
}
