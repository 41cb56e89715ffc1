package metrics

import "github.com/prometheus/client_golang/prometheus"

// TimelineMetrics counts subscription and normalization activity. A nil
// *TimelineMetrics is valid and records nothing.
type TimelineMetrics struct {
	active         prometheus.Gauge
	snapshots      *prometheus.CounterVec
	fallbacks      prometheus.Counter
	failures       prometheus.Counter
	normalizeIssue *prometheus.CounterVec
	buildLatency   prometheus.Histogram
	streamClients  prometheus.Gauge
}

func NewTimelineMetrics(reg prometheus.Registerer) *TimelineMetrics {
	m := &TimelineMetrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timeline",
			Subsystem: "subscription",
			Name:      "active",
			Help:      "Open range subscriptions",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "subscription",
			Name:      "snapshots_total",
			Help:      "Snapshots delivered, by query mode",
		}, []string{"mode"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "subscription",
			Name:      "fallbacks_total",
			Help:      "Primary queries rejected and replaced by the fallback query",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "subscription",
			Name:      "failures_total",
			Help:      "Subscriptions whose fallback query also failed",
		}),
		normalizeIssue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "normalize",
			Name:      "issues_total",
			Help:      "Recovered problems in stored appointment documents",
		}, []string{"kind"}),
		buildLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "timeline",
			Subsystem: "view",
			Name:      "build_seconds",
			Help:      "Time to assemble a timeline view from a snapshot",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timeline",
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.active, m.snapshots, m.fallbacks, m.failures, m.normalizeIssue, m.buildLatency, m.streamClients)
	return m
}

func (m *TimelineMetrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *TimelineMetrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *TimelineMetrics) ObserveSnapshot(mode string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(mode).Inc()
}

func (m *TimelineMetrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *TimelineMetrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

func (m *TimelineMetrics) ObserveNormalizeIssue(kind string) {
	if m == nil {
		return
	}
	m.normalizeIssue.WithLabelValues(kind).Inc()
}

func (m *TimelineMetrics) ObserveBuild(seconds float64) {
	if m == nil {
		return
	}
	m.buildLatency.Observe(seconds)
}

func (m *TimelineMetrics) StreamConnected() {
	if m == nil {
		return
	}
	m.streamClients.Inc()
}

func (m *TimelineMetrics) StreamDisconnected() {
	if m == nil {
		return
	}
	m.streamClients.Dec()
}
