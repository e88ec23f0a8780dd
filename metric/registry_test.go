package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/errors"
)

func TestNewMetricsRegistryExposesCoreInstruments(t *testing.T) {
	r := NewMetricsRegistry()

	r.Metrics.EventsReceived.Inc()
	r.Metrics.AlertsTotal.WithLabelValues("threshold", "critical").Inc()
	r.Metrics.DeliveriesTotal.WithLabelValues("email", "sent").Add(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.Metrics.EventsReceived))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(r.Metrics.AlertsTotal.WithLabelValues("threshold", "critical")))
	assert.Equal(t, float64(3),
		testutil.ToFloat64(r.Metrics.DeliveriesTotal.WithLabelValues("email", "sent")))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "custom_total",
		Help:      "test counter",
	})

	require.NoError(t, r.Register("worker", "custom_total", counter))

	err := r.Register("worker", "custom_total", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "custom_gauge",
		Help:      "test gauge",
	})
	require.NoError(t, r.Register("worker", "custom_gauge", gauge))

	assert.True(t, r.Unregister("worker", "custom_gauge"))
	assert.False(t, r.Unregister("worker", "custom_gauge"))

	// Re-registration after unregister succeeds.
	assert.NoError(t, r.Register("worker", "custom_gauge", gauge))
}
