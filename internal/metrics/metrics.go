// Package metrics provides Prometheus metrics for ground
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all Prometheus metrics for ground. A nil *Metrics
// records nothing.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	IDsIssuedTotal    *prometheus.CounterVec
	EndpointsClosed   prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ground_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ground_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	m.IDsIssuedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ground_ids_issued_total",
			Help: "Total number of ids issued, by id space",
		},
		[]string{"space"},
	)

	m.EndpointsClosed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "ground_endpoints_closed_total",
			Help: "Total number of edge version endpoints closed by a newer sibling",
		},
	)

	return m
}

// RecordOperation records one store operation
func (m *Metrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordID records an issued id
func (m *Metrics) RecordID(space string) {
	if m == nil {
		return
	}
	m.IDsIssuedTotal.WithLabelValues(space).Inc()
}

// RecordEndpointClosed records one endpoint moving from open to closed
func (m *Metrics) RecordEndpointClosed() {
	if m == nil {
		return
	}
	m.EndpointsClosed.Inc()
}
