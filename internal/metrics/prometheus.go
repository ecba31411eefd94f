package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netasset"

var histogramBuckets = []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0}

// PrometheusRegistry mirrors every recorded metric into a Prometheus
// registry so the scrape endpoint sees the same series the in-process
// snapshot does. Collectors are created lazily on first use, keyed by
// metric name; a metric's label keys are fixed by its first recording.
type PrometheusRegistry struct {
	*Registry

	mu         sync.Mutex
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusRegistry creates a registry backed by a dedicated
// Prometheus registry with the standard Go and process collectors.
func NewPrometheusRegistry() *PrometheusRegistry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &PrometheusRegistry{
		Registry:   NewRegistry(),
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler returns the HTTP handler for the scrape endpoint.
func (p *PrometheusRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Counter increments a counter metric.
func (p *PrometheusRegistry) Counter(name string, labels Labels) {
	if !p.IsEnabled() {
		return
	}
	p.Registry.Counter(name, labels)
	p.counterVec(name, labels).With(prometheus.Labels(labels)).Inc()
}

// Gauge sets a gauge metric value.
func (p *PrometheusRegistry) Gauge(name string, value float64, labels Labels) {
	if !p.IsEnabled() {
		return
	}
	p.Registry.Gauge(name, value, labels)
	p.gaugeVec(name, labels).With(prometheus.Labels(labels)).Set(value)
}

// Histogram records a value in a histogram metric.
func (p *PrometheusRegistry) Histogram(name string, value float64, labels Labels) {
	if !p.IsEnabled() {
		return
	}
	p.Registry.Histogram(name, value, labels)
	p.histogramVec(name, labels).With(prometheus.Labels(labels)).Observe(value)
}

func (p *PrometheusRegistry) counterVec(name string, labels Labels) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: name},
			labelKeys(labels),
		)
		p.registry.MustRegister(vec)
		p.counters[name] = vec
	}
	return vec
}

func (p *PrometheusRegistry) gaugeVec(name string, labels Labels) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: name},
			labelKeys(labels),
		)
		p.registry.MustRegister(vec)
		p.gauges[name] = vec
	}
	return vec
}

func (p *PrometheusRegistry) histogramVec(name string, labels Labels) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: name, Buckets: histogramBuckets},
			labelKeys(labels),
		)
		p.registry.MustRegister(vec)
		p.histograms[name] = vec
	}
	return vec
}

func labelKeys(labels Labels) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
