package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestValidationError(t *testing.T) {
	ve := NewValidationError("rule-1")
	assert.False(t, ve.HasViolations())

	ve.Add("condition", "is required").Add("severity", "must be one of info, warning, critical")
	require.True(t, ve.HasViolations())
	assert.Len(t, ve.Violations, 2)
	assert.Contains(t, ve.Error(), `rule-1`)
	assert.Contains(t, ve.Error(), "condition: is required")
	assert.Contains(t, ve.Error(), "severity: must be one of")

	assert.True(t, IsValidation(ve))
	assert.True(t, IsInvalid(ve))
	assert.Equal(t, ErrorInvalid, Classify(ve))

	wrapped := fmt.Errorf("store.Add: %w", ve)
	assert.True(t, IsValidation(wrapped))
}

func TestNotFoundError(t *testing.T) {
	ne := &NotFoundError{Kind: "template", ID: "gas_threshold"}
	assert.Equal(t, `template "gas_threshold" not found`, ne.Error())
	assert.True(t, IsNotFound(ne))
	assert.True(t, IsInvalid(ne))
	assert.False(t, IsNotFound(New("plain")))
}

func TestWrapHelpers(t *testing.T) {
	base := New("boom")

	err := Wrap(base, "Dispatcher", "Notify", "delivery")
	require.Error(t, err)
	assert.Equal(t, "Dispatcher.Notify: delivery failed: boom", err.Error())
	assert.True(t, Is(err, base))

	assert.Nil(t, Wrap(nil, "a", "b", "c"))
	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"wrapped transient", WrapTransient(New("x"), "c", "m", "a"), ErrorTransient},
		{"wrapped invalid", WrapInvalid(New("x"), "c", "m", "a"), ErrorInvalid},
		{"wrapped fatal", WrapFatal(New("x"), "c", "m", "a"), ErrorFatal},
		{"sentinel timeout", ErrConnectionTimeout, ErrorTransient},
		{"context deadline", context.DeadlineExceeded, ErrorTransient},
		{"invalid data", ErrInvalidData, ErrorInvalid},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"timeout pattern", New("dial tcp: i/o timeout"), ErrorTransient},
		{"unknown defaults transient", New("something odd"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	base := New("inner")
	err := WrapTransient(base, "KVStore", "Put", "write")

	var ce *ClassifiedError
	require.True(t, As(err, &ce))
	assert.Equal(t, "KVStore", ce.Component)
	assert.Equal(t, "Put", ce.Operation)
	assert.True(t, Is(ce, base))
}
