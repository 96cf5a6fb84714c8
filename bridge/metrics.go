package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caffeineduck/stackbridge/wire"
)

// Metrics are the host's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	pending    *prometheus.GaugeVec
	replies    *prometheus.CounterVec
	mismatches *prometheus.CounterVec
	fetches    *prometheus.CounterVec
	fetchTime  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stackbridge",
			Name:      "pending_replies",
			Help:      "Operations waiting for a reply from the runtime.",
		}, []string{"op"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackbridge",
			Name:      "replies_total",
			Help:      "Replies delivered to callers by result.",
		}, []string{"op", "result"}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackbridge",
			Name:      "protocol_mismatches_total",
			Help:      "Replies dropped for an unknown token or malformed payload.",
		}, []string{"op"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackbridge",
			Name:      "fetch_requests_total",
			Help:      "Proxied fetches by outcome: HTTP status class or transport error code.",
		}, []string{"outcome"}),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stackbridge",
			Name:      "fetch_duration_seconds",
			Help:      "Proxied fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.pending, m.replies, m.mismatches, m.fetches, m.fetchTime)
	}
	return m
}

func (m *Metrics) issued(op string) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(op).Inc()
}

func (m *Metrics) settled(op, result string) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(op).Dec()
	m.replies.WithLabelValues(op, result).Inc()
}

func (m *Metrics) mismatch(op string) {
	if m == nil {
		return
	}
	m.mismatches.WithLabelValues(op).Inc()
}

// ObserveFetch implements fetch.Observer.
func (m *Metrics) ObserveFetch(outcome wire.FetchOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := wire.CodeUnknown
	switch {
	case outcome.Error != nil:
		label = outcome.Error.Code
	case outcome.Response != nil:
		label = statusClass(outcome.Response.StatusCode)
	}
	m.fetches.WithLabelValues(label).Inc()
	m.fetchTime.Observe(elapsed.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
