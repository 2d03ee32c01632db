// Package metrics holds the prometheus collectors the bot exposes on the
// ops server. All consumers tolerate a nil *Metrics so tests and
// metrics-disabled deployments skip instrumentation entirely.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	rebuildsTotal     prometheus.Counter
	triggersInstalled prometheus.Gauge
	firingsTotal      *prometheus.CounterVec
	sendsTotal        *prometheus.CounterVec
	sendDuration      prometheus.Histogram
}

// Firing results.
const (
	FiringOK      = "ok"
	FiringFailed  = "failed"
	FiringDropped = "dropped"
)

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rebuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hermesbot_schedule_rebuilds_total",
			Help: "Number of full trigger-set rebuilds.",
		}),
		triggersInstalled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hermesbot_triggers_installed",
			Help: "Triggers currently installed in the cron engine.",
		}),
		firingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hermesbot_trigger_firings_total",
			Help: "Trigger firings by result (ok, failed, dropped).",
		}, []string{"result"}),
		sendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hermesbot_messages_sent_total",
			Help: "Outbound chat messages by kind and result.",
		}, []string{"kind", "result"}),
		sendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hermesbot_send_duration_seconds",
			Help:    "Latency of chat send calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncRebuilds() {
	if m == nil {
		return
	}
	m.rebuildsTotal.Inc()
}

func (m *Metrics) SetTriggersInstalled(n int) {
	if m == nil {
		return
	}
	m.triggersInstalled.Set(float64(n))
}

func (m *Metrics) IncFiring(result string) {
	if m == nil {
		return
	}
	m.firingsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncSend(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.sendsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveSendSeconds(sec float64) {
	if m == nil {
		return
	}
	m.sendDuration.Observe(sec)
}
