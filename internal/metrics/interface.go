package metrics

// MetricsRegistry is the collection interface the rest of the scanner
// depends on, so handlers and jobs can be tested against the plain
// registry while production runs the Prometheus exporter.
type MetricsRegistry interface {
	// SetEnabled enables or disables metrics collection.
	SetEnabled(enabled bool)

	// IsEnabled returns whether metrics collection is enabled.
	IsEnabled() bool

	// Counter increments a counter metric with the given name and labels.
	Counter(name string, labels Labels)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, labels Labels)

	// Histogram records a value in a histogram metric.
	Histogram(name string, value float64, labels Labels)

	// GetMetrics returns a snapshot of all current metrics.
	GetMetrics() map[string]*Metric

	// Reset clears all metrics from the registry.
	Reset()
}

var _ MetricsRegistry = (*Registry)(nil)
var _ MetricsRegistry = (*PrometheusRegistry)(nil)
