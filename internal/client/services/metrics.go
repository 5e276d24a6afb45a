package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
)

// Metrics instruments gateway calls and connection health. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	up       prometheus.Gauge
	latency  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stuffhappens",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth gateway operations by outcome.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stuffhappens",
			Subsystem: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Latency of auth gateway operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stuffhappens",
			Subsystem: "backend",
			Name:      "up",
			Help:      "1 if the last connection check succeeded.",
		}),
		latency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stuffhappens",
			Subsystem: "backend",
			Name:      "latency_seconds",
			Help:      "Round trip of the last connection check.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.duration, m.up, m.latency)
	}
	return m
}

// Result labels.
const (
	resultOK          = "ok"
	resultRejected    = "rejected"
	resultUnavailable = "unavailable"
	resultError       = "error"
)

func (m *Metrics) observe(op string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	m.ops.WithLabelValues(op, resultOf(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setHealth(h ConnectionHealth) {
	if m == nil {
		return
	}
	if h.IsConnected {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
	m.latency.Set(h.Latency.Seconds())
}

func resultOf(err error) string {
	var pe *client.ProviderError
	switch {
	case err == nil:
		return resultOK
	case errors.As(err, &pe):
		return resultRejected
	case errors.Is(err, client.ErrUnavailable):
		return resultUnavailable
	}
	return resultError
}
