// Package expression implements the rule condition DSL: a single binary
// comparison "path operator literal" compiled to a small AST at rule-add time.
// Evaluation against an event never fails: an unresolvable field or a
// non-numeric leaf evaluates to false.
package expression

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/c360/sentinel/types"
)

// Comparison operators
const (
	OpGreaterThan      = ">"
	OpGreaterThanEqual = ">="
	OpLessThan         = "<"
	OpLessThanEqual    = "<="
	OpEqual            = "=="
	OpNotEqual         = "!="
)

// OperatorFunc defines the signature for operator implementations
type OperatorFunc func(fieldValue, literal float64) bool

// operators maps each supported operator to its implementation.
var operators = map[string]OperatorFunc{
	OpGreaterThan:      func(a, b float64) bool { return a > b },
	OpGreaterThanEqual: func(a, b float64) bool { return a >= b },
	OpLessThan:         func(a, b float64) bool { return a < b },
	OpLessThanEqual:    func(a, b float64) bool { return a <= b },
	OpEqual:            func(a, b float64) bool { return a == b },
	OpNotEqual:         func(a, b float64) bool { return a != b },
}

// conditionPattern matches "path operator literal" with a dot-separated field
// path and a numeric literal. Two-character operators must be listed before
// their one-character prefixes.
var conditionPattern = regexp.MustCompile(
	`^\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*(>=|<=|==|!=|>|<)\s*(-?\d+(?:\.\d+)?)\s*$`)

// ParseError describes why a condition string could not be compiled.
type ParseError struct {
	Condition string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse condition %q: %s", e.Condition, e.Reason)
}

// Condition is a compiled comparison expression.
type Condition struct {
	Field    string  `json:"field"`
	Operator string  `json:"operator"`
	Literal  float64 `json:"literal"`

	raw string
	op  OperatorFunc
}

// Parse compiles a condition string. Compilation happens once, at rule-add
// time, so malformed conditions are rejected before a rule is ever evaluated.
func Parse(condition string) (*Condition, error) {
	m := conditionPattern.FindStringSubmatch(condition)
	if m == nil {
		return nil, &ParseError{Condition: condition, Reason: "expected \"field op number\""}
	}

	literal, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil, &ParseError{Condition: condition, Reason: "invalid numeric literal"}
	}

	op, ok := operators[m[2]]
	if !ok {
		return nil, &ParseError{Condition: condition, Reason: "unsupported operator"}
	}

	return &Condition{
		Field:    m[1],
		Operator: m[2],
		Literal:  literal,
		raw:      condition,
		op:       op,
	}, nil
}

// Evaluate applies the condition to an event. A missing or non-numeric field
// evaluates to false rather than raising; the second return is the extracted
// field value when present.
func (c *Condition) Evaluate(event *types.SensorEvent) (matched bool, value float64, present bool) {
	v, ok := event.Lookup(c.Field)
	if !ok {
		return false, 0, false
	}
	f, isNum := v.Float()
	if !isNum {
		return false, 0, false
	}
	return c.op(f, c.Literal), f, true
}

// String returns the original condition text.
func (c *Condition) String() string {
	if c.raw != "" {
		return c.raw
	}
	return fmt.Sprintf("%s %s %g", c.Field, c.Operator, c.Literal)
}
