package history

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a Cache. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	MessagesAdded   prometheus.Counter
	Evictions       prometheus.Counter
	Persists        *prometheus.CounterVec
	PersistDuration prometheus.Histogram
	Conversations   prometheus.Gauge
}

// NewMetrics creates the cache collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatbridge_history_messages_added_total",
			Help: "Messages appended to conversation histories.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatbridge_history_evictions_total",
			Help: "Oldest messages dropped to keep histories within their bound.",
		}),
		Persists: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatbridge_history_persist_total",
				Help: "Snapshot saves by result (ok/error).",
			},
			[]string{"result"},
		),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatbridge_history_persist_duration_seconds",
			Help:    "Time spent writing a full snapshot.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
		Conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatbridge_history_conversations",
			Help: "Conversations currently held in the cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MessagesAdded, m.Evictions, m.Persists, m.PersistDuration, m.Conversations)
	}
	return m
}

func (m *Metrics) added(evicted bool) {
	if m == nil {
		return
	}
	m.MessagesAdded.Inc()
	if evicted {
		m.Evictions.Inc()
	}
}

func (m *Metrics) persisted(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Persists.WithLabelValues(result).Inc()
	m.PersistDuration.Observe(d.Seconds())
}

func (m *Metrics) conversations(n int) {
	if m == nil {
		return
	}
	m.Conversations.Set(float64(n))
}
