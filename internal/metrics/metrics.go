// Package metrics holds the Prometheus collectors of the logger.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "dht_logger"

// Metrics groups the collectors updated by the poll loop.
type Metrics struct {
	Cycles       *prometheus.CounterVec
	ReadAttempts prometheus.Counter
	SensorErrors *prometheus.CounterVec
	Deliveries   *prometheus.CounterVec
	Sensors      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of poll cycles by result.",
		}, []string{"result"}),
		ReadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_attempts_total",
			Help:      "Number of reads issued against the source.",
		}),
		SensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_errors_total",
			Help:      "Number of error entries reported per sensor.",
		}, []string{"sensor"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Number of snapshot deliveries by channel and result.",
		}, []string{"channel", "result"}),
		Sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors",
			Help:      "Number of sensors in the last snapshot.",
		}),
	}
	reg.MustRegister(m.Cycles, m.ReadAttempts, m.SensorErrors, m.Deliveries, m.Sensors)
	return m
}

// NewNop returns collectors that are not registered anywhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
