// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgard/chatkeeper/internal/kvstore"
	"github.com/edgard/chatkeeper/internal/snapshot"
)

const namespace = "chatkeeper"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	purgedKeys      *prometheus.CounterVec
	rewriteDuration prometheus.Histogram
	rewriteFailures prometheus.Counter
	sweptMessages   prometheus.Counter
	sweptStatsKeys  prometheus.Counter
	reports         *prometheus.CounterVec
	replies         *prometheus.CounterVec
}

var _ snapshot.Observer = (*Metrics)(nil)

// New creates the collectors, including the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		purgedKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kvstore",
			Name:      "expired_keys_total",
			Help:      "Keys removed after their TTL elapsed, by purge path.",
		}, []string{"path"}),
		rewriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "rewrite_duration_seconds",
			Help:      "Time spent rewriting the snapshot file.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		rewriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "rewrite_failures_total",
			Help:      "Snapshot rewrites that failed.",
		}),
		sweptMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "messages_removed_total",
			Help:      "Messages removed by the retention sweep.",
		}),
		sweptStatsKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "stats_keys_removed_total",
			Help:      "Daily counter tables removed by the retention sweep.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Generated reports by kind and outcome.",
		}, []string{"kind", "outcome"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Conversational replies by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.purgedKeys,
		m.rewriteDuration,
		m.rewriteFailures,
		m.sweptMessages,
		m.sweptStatsKeys,
		m.reports,
		m.replies,
	)
	return m
}

// RegisterStore exports the key counts of kv as gauges.
func (m *Metrics) RegisterStore(kv *kvstore.Store) {
	gauge := func(name, help string, value func(kvstore.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kvstore",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(kv.Stats())) })
	}
	m.registry.MustRegister(
		gauge("ordered_sets", "Live message log keys.", func(s kvstore.Stats) int { return s.OrderedSets }),
		gauge("counter_hashes", "Live daily counter keys.", func(s kvstore.Stats) int { return s.CounterHashes }),
		gauge("expiries", "Keys carrying a TTL.", func(s kvstore.Stats) int { return s.Expiries }),
	)
}

// ObservePurge matches kvstore.WithPurgeHook.
func (m *Metrics) ObservePurge(path string, n int) {
	m.purgedKeys.WithLabelValues(path).Add(float64(n))
}

// ObserveRewrite implements snapshot.Observer.
func (m *Metrics) ObserveRewrite(d time.Duration, err error) {
	m.rewriteDuration.Observe(d.Seconds())
	if err != nil {
		m.rewriteFailures.Inc()
	}
}

// ObserveSweep implements snapshot.Observer.
func (m *Metrics) ObserveSweep(r snapshot.SweepResult) {
	m.sweptMessages.Add(float64(r.MessagesRemoved))
	m.sweptStatsKeys.Add(float64(r.StatsKeysRemoved))
}

// ObserveReport counts a generated report.
func (m *Metrics) ObserveReport(kind string, err error) {
	m.reports.WithLabelValues(kind, outcome(err)).Inc()
}

// ObserveReply counts a conversational reply.
func (m *Metrics) ObserveReply(fallback bool) {
	if fallback {
		m.replies.WithLabelValues("fallback").Inc()
		return
	}
	m.replies.WithLabelValues("ok").Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
