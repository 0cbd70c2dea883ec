package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recall/internal/daycache"
	"recall/internal/model"
)

const namespace = "recall"

// Metrics exports layout and commit activity. It implements
// calendar.Observer.
type Metrics struct {
	reg *prometheus.Registry

	layoutPasses   prometheus.Counter
	layoutDuration prometheus.Histogram
	layoutEvents   prometheus.Histogram
	commits        *prometheus.CounterVec
	requests       *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry. cache may be nil.
func NewMetrics(cache *daycache.Cache) (*Metrics, error) {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		layoutPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_passes_total",
			Help:      "Overlap analyses run, one per day and cache epoch.",
		}),
		layoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Time spent computing collision records for a day.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		layoutEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_events",
			Help:      "Events per analyzed day.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Event writes by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "code"}),
	}

	cs := []prometheus.Collector{
		m.layoutPasses, m.layoutDuration, m.layoutEvents, m.commits, m.requests,
		collectors.NewGoCollector(),
	}
	if cache != nil {
		cs = append(cs, cacheCollectors(cache)...)
	}
	for _, c := range cs {
		if err := m.reg.Register(c); err != nil {
			return nil, fmt.Errorf("web: register metrics: %w", err)
		}
	}
	return m, nil
}

func cacheCollectors(cache *daycache.Cache) []prometheus.Collector {
	stat := func(pick func(daycache.Stats) float64) func() float64 {
		return func() float64 { return pick(cache.Stats()) }
	}
	return []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "daycache", Name: "hits_total",
			Help: "Day lookups served from a populated bucket.",
		}, stat(func(s daycache.Stats) float64 { return float64(s.Hits) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "daycache", Name: "misses_total",
			Help: "Day lookups that populated a bucket.",
		}, stat(func(s daycache.Stats) float64 { return float64(s.Misses) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "daycache", Name: "invalidations_total",
			Help: "Full cache invalidations.",
		}, stat(func(s daycache.Stats) float64 { return float64(s.Invalidations) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "daycache", Name: "buckets",
			Help: "Populated day buckets.",
		}, stat(func(s daycache.Stats) float64 { return float64(s.Buckets) })),
	}
}

func (m *Metrics) LayoutPass(_ model.Day, events int, took time.Duration) {
	if m == nil {
		return
	}
	m.layoutPasses.Inc()
	m.layoutDuration.Observe(took.Seconds())
	m.layoutEvents.Observe(float64(events))
}

func (m *Metrics) Commit(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRequest(route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, fmt.Sprintf("%dxx", status/100)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
