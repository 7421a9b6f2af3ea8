// Package metrics exposes monitor activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/netvigil/internal/domain"
)

const namespace = "netvigil"

// Metrics owns its registry so tests and multiple instances do not collide
// on the global one.
type Metrics struct {
	reg *prometheus.Registry

	probes      *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	level       prometheus.Gauge
	transitions *prometheus.CounterVec
	outages     prometheus.Counter
	downtime    prometheus.Counter
	traces      *prometheus.CounterVec
	traceHops   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probe outcomes by endpoint and result.",
		}, []string{"address", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Round-trip latency of successful probes.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"address"}),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_level",
			Help:      "Current level: 0 online, 1 degraded, 2 offline.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_transitions_total",
			Help:      "Level changes by destination level.",
		}, []string{"to"}),
		outages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outages_total",
			Help:      "Outages opened.",
		}),
		downtime: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downtime_seconds_total",
			Help:      "Accumulated duration of closed outages.",
		}),
		traces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_traces_total",
			Help:      "Path traces by trigger and whether the target was reached.",
		}, []string{"trigger", "reached"}),
		traceHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_trace_hops",
			Help:      "Number of hops parsed per trace.",
			Buckets:   prometheus.LinearBuckets(1, 3, 10),
		}),
	}
	m.reg.MustRegister(
		m.probes, m.latency, m.level, m.transitions,
		m.outages, m.downtime, m.traces, m.traceHops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveProbe(o domain.ProbeOutcome) {
	result := "ok"
	if !o.Success {
		result = "fail"
	}
	m.probes.WithLabelValues(o.Address, result).Inc()
	if o.Success && o.LatencyMS != nil {
		m.latency.WithLabelValues(o.Address).Observe(*o.LatencyMS / 1000)
	}
}

// SetLevel records the current level and counts a transition when it moved.
func (m *Metrics) SetLevel(prev, cur domain.Level) {
	m.level.Set(float64(cur))
	if prev != cur {
		m.transitions.WithLabelValues(cur.String()).Inc()
	}
}

func (m *Metrics) OutageOpened() { m.outages.Inc() }

func (m *Metrics) OutageClosed(o *domain.Outage) {
	if o != nil && o.DurationSecs != nil {
		m.downtime.Add(*o.DurationSecs)
	}
}

func (m *Metrics) ObserveTrace(tr domain.PathTrace) {
	reached := "false"
	if tr.ReachedTarget {
		reached = "true"
	}
	m.traces.WithLabelValues(string(tr.Trigger), reached).Inc()
	m.traceHops.Observe(float64(len(tr.Hops)))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
