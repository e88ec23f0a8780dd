package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/types"
)

func TestTemplatesCatalog(t *testing.T) {
	catalog := Templates()
	require.NotEmpty(t, catalog)

	names := make(map[string]bool)
	for _, tmpl := range catalog {
		names[tmpl.Name] = true
		// Every catalog entry must instantiate cleanly as-is
		rule, err := InstantiateTemplate(tmpl.Name, nil)
		require.NoError(t, err, tmpl.Name)
		assert.NotNil(t, rule.Compiled())
	}
	assert.True(t, names["gas_critical"])
	assert.True(t, names["motion_detected"])
	assert.True(t, names["temperature_high"])
	assert.True(t, names["humidity_low"])
}

func TestInstantiateTemplateOverrides(t *testing.T) {
	rule, err := InstantiateTemplate("gas_critical", map[string]any{
		"id":        "gas_crit_d1",
		"device_id": "d1",
		"condition": "gas_concentration > 450",
		"throttle":  "2m",
	})
	require.NoError(t, err)
	assert.Equal(t, "gas_crit_d1", rule.ID)
	assert.Equal(t, "d1", rule.DeviceID)
	assert.Equal(t, "gas_concentration > 450", rule.Condition)
	assert.Equal(t, "2m0s", rule.Throttle.String())
	assert.Equal(t, types.SeverityCritical, rule.Severity)
	assert.Equal(t, []string{"email", "sms"}, rule.Channels)
}

func TestInstantiateTemplateUnknownName(t *testing.T) {
	_, err := InstantiateTemplate("no_such_template", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestInstantiateTemplateInvalidOverride(t *testing.T) {
	_, err := InstantiateTemplate("gas_warning", map[string]any{
		"condition": "definitely not a condition",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestAddFromTemplate(t *testing.T) {
	s := NewStore()
	rule, err := s.AddFromTemplate("temperature_high", map[string]any{"id": "greenhouse_temp"})
	require.NoError(t, err)

	got, err := s.Get("greenhouse_temp")
	require.NoError(t, err)
	assert.Equal(t, rule.Condition, got.Condition)
}
