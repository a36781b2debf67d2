package app

import (
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "callrelay"

type Metrics struct {
	created     prometheus.Counter
	ended       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	candidates  prometheus.Counter
	transitions *prometheus.CounterVec
	live        prometheus.Gauge
	watchers    prometheus.Gauge
}

// NewMetrics registers the relay collectors on reg. A nil reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Signaling sessions created.",
		}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_ended_total",
			Help:      "Signaling sessions removed, by reason.",
		}, []string{"reason"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_rejected_total",
			Help:      "Operations rejected, by operation and error code.",
		}, []string{"op", "code"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "candidates_appended_total",
			Help:      "Connectivity candidates stored.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "state_transitions_total",
			Help:      "Session state transitions, by target state.",
		}, []string{"to"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_live",
			Help:      "Sessions currently held in memory.",
		}),
		watchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "watchers_connected",
			Help:      "Push watchers currently connected.",
		}),
	}
	reg.MustRegister(m.created, m.ended, m.rejected, m.candidates, m.transitions, m.live, m.watchers)
	return m
}

func (m *Metrics) sessionCreated() {
	m.created.Inc()
	m.live.Inc()
	m.transitions.WithLabelValues(string(domain.StateCreated)).Inc()
}

func (m *Metrics) sessionEnded(reason string) {
	m.ended.WithLabelValues(reason).Inc()
	m.live.Dec()
	m.transitions.WithLabelValues(string(domain.StateEnded)).Inc()
}

func (m *Metrics) transition(to domain.State) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) candidate() { m.candidates.Inc() }

func (m *Metrics) reject(op string, err error) {
	m.rejected.WithLabelValues(op, ErrorCode(err)).Inc()
}
