// Package metrics exposes detector counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exfil"

// Metrics holds the detector collectors and the registry they are served from.
type Metrics struct {
	registry *prometheus.Registry

	Queries       *prometheus.CounterVec
	Alerts        *prometheus.CounterVec
	Rules         *prometheus.CounterVec
	SinkErrors    prometheus.Counter
	PublishErrors prometheus.Counter
}

// New creates the detector metrics and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "DNS queries inspected, by outcome",
		}, []string{"outcome"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised, by severity",
		}, []string{"severity"}),
		Rules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_hits_total",
			Help:      "Rules that fired on alerting queries, by rule",
		}, []string{"rule"}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_sink_errors_total",
			Help:      "Alerts that could not be appended to the alert log",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_errors_total",
			Help:      "Alerts that could not be published or notified",
		}),
	}

	m.registry.MustRegister(m.Queries, m.Alerts, m.Rules, m.SinkErrors, m.PublishErrors)
	return m
}

// Registry returns the registry backing this instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOutcome counts one inspected query.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.Queries.WithLabelValues(outcome).Inc()
}

// ObserveAlert counts an alert by severity and each of its rules.
func (m *Metrics) ObserveAlert(rec domain.AlertRecord) {
	m.Alerts.WithLabelValues(string(rec.Severity)).Inc()
	for _, r := range rec.Rules {
		m.Rules.WithLabelValues(string(r)).Inc()
	}
}

// SinkError counts a failed alert log append.
func (m *Metrics) SinkError() {
	m.SinkErrors.Inc()
}

// PublishError counts a failed console or NATS delivery.
func (m *Metrics) PublishError() {
	m.PublishErrors.Inc()
}

// SourceStats mirrors the counters a capture source keeps.
type SourceStats struct {
	Received  uint64
	Dropped   uint64
	Malformed uint64
}

// WatchSource exports a capture source's counters, read on every scrape.
func (m *Metrics) WatchSource(kind string, stats func() SourceStats) error {
	labels := prometheus.Labels{"source": kind}
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capture_received_total",
			Help:        "Query events delivered to the detector queue",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Received) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capture_dropped_total",
			Help:        "Query events dropped because the queue was full",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capture_malformed_total",
			Help:        "Captured inputs that could not be decoded",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Malformed) }),
	}
	return m.registerAll(collectors)
}

// TrackerStats mirrors the frequency tracker counters.
type TrackerStats struct {
	Domains   int
	Evictions uint64
	Pruned    uint64
}

// WatchTracker exports the frequency tracker's size and churn.
func (m *Metrics) WatchTracker(stats func() TrackerStats) error {
	return m.registerAll([]prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_domains",
			Help:      "Base domains with queries inside the frequency window",
		}, func() float64 { return float64(stats().Domains) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_evictions_total",
			Help:      "Base domains dropped because the tracker was full",
		}, func() float64 { return float64(stats().Evictions) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_pruned_total",
			Help:      "Base domains removed after their window emptied",
		}, func() float64 { return float64(stats().Pruned) }),
	})
}

// WhitelistStats mirrors the whitelist repository counters.
type WhitelistStats struct {
	Rules        uint64
	CacheHits    uint64
	CacheMisses  uint64
	BloomRejects uint64
}

// WatchWhitelist exports whitelist size and lookup effectiveness.
func (m *Metrics) WatchWhitelist(stats func() WhitelistStats) error {
	return m.registerAll([]prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "whitelist_rules",
			Help:      "Whitelisted domains currently indexed",
		}, func() float64 { return float64(stats().Rules) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whitelist_cache_hits_total",
			Help:      "Whitelist lookups answered by the decision cache",
		}, func() float64 { return float64(stats().CacheHits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whitelist_cache_misses_total",
			Help:      "Whitelist lookups that missed the decision cache",
		}, func() float64 { return float64(stats().CacheMisses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whitelist_bloom_rejects_total",
			Help:      "Whitelist lookups rejected by the Bloom filter alone",
		}, func() float64 { return float64(stats().BloomRejects) }),
	})
}

func (m *Metrics) registerAll(cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
