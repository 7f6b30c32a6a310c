package metrics_test

import (
	"testing"

	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Cycles.WithLabelValues("ok").Inc()
	m.ReadAttempts.Add(3)
	m.SensorErrors.WithLabelValues("s2").Inc()
	m.Deliveries.WithLabelValues("live", "ok").Inc()
	m.Sensors.Set(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"dht_logger_cycles_total",
		"dht_logger_read_attempts_total",
		"dht_logger_sensor_errors_total",
		"dht_logger_deliveries_total",
		"dht_logger_sensors",
	}, names)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReadAttempts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sensors))
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}

func TestNewNopIsIndependent(t *testing.T) {
	a, b := metrics.NewNop(), metrics.NewNop()
	a.ReadAttempts.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ReadAttempts))
	assert.Zero(t, testutil.ToFloat64(b.ReadAttempts))
}
