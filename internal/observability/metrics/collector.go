// Package metrics provides metrics collection and exposition for gradkit.
// It integrates the Prometheus SDK to define and collect core training
// metrics including batch latency, NaN skips, epoch durations, and more.
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector manages Prometheus metrics collection
type Collector interface {
	// IncrementCounter increments a counter metric
	IncrementCounter(name string, labels map[string]string)

	// AddCounter adds a value to a counter metric
	AddCounter(name string, value float64, labels map[string]string)

	// SetGauge sets a gauge metric
	SetGauge(name string, value float64, labels map[string]string)

	// ObserveHistogram records an observation in a histogram metric
	ObserveHistogram(name string, value float64, labels map[string]string)

	// Handler returns the HTTP handler for metrics exposition
	Handler() http.Handler
}

// CollectorConfig defines metrics collector configuration
type CollectorConfig struct {
	// Namespace for all metrics
	Namespace string

	// Subsystem for metrics grouping
	Subsystem string

	// Enable default Go runtime metrics
	EnableGoMetrics bool

	// Enable process metrics
	EnableProcessMetrics bool

	// Custom registry (optional)
	Registry *prometheus.Registry
}

// prometheusCollector is the Prometheus-backed Collector implementation
type prometheusCollector struct {
	registry  *prometheus.Registry
	namespace string
	subsystem string

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	mu sync.RWMutex
}

// NewCollector creates a new Prometheus-backed metrics collector
func NewCollector(cfg CollectorConfig) Collector {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.EnableGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}
	if cfg.EnableProcessMetrics {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	c := &prometheusCollector{
		registry:   registry,
		namespace:  cfg.Namespace,
		subsystem:  cfg.Subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	c.registerCoreMetrics()

	return c
}

// registerCoreMetrics registers all core training metrics
func (c *prometheusCollector) registerCoreMetrics() {
	// Loop metrics
	c.RegisterCounter("train_iterations_total", "Total number of training iterations", []string{"tag"})
	c.RegisterCounter("train_nan_batches_total", "Total number of batches skipped because of a NaN loss", []string{"tag"})
	c.RegisterHistogram("train_batch_duration_seconds", "Training batch duration in seconds", []string{"tag"}, prometheus.DefBuckets)
	c.RegisterHistogram("epoch_duration_seconds", "Epoch duration in seconds", []string{"tag"},
		[]float64{1, 5, 15, 60, 300, 900, 3600, 14400})
	c.RegisterGauge("epoch_current", "Current epoch", []string{"tag"})

	// Batch loading metrics
	c.RegisterHistogram("batch_load_duration_seconds", "Batch loading duration in seconds", []string{"tag"}, prometheus.DefBuckets)
	c.RegisterGauge("batch_load_time_pct", "Percentage of iteration time spent loading batches", []string{"tag"})

	// Checkpoint metrics
	c.RegisterCounter("checkpoints_saved_total", "Total number of checkpoints saved", []string{"store"})
	c.RegisterCounter("checkpoint_errors_total", "Total number of checkpoint failures", []string{"store"})
	c.RegisterHistogram("checkpoint_save_duration_seconds", "Checkpoint save duration in seconds", []string{"store"}, prometheus.DefBuckets)
}

// RegisterCounter registers a counter metric
func (c *prometheusCollector) RegisterCounter(name, help string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.counters[name]; exists {
		return
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)

	c.registry.MustRegister(counter)
	c.counters[name] = counter
}

// RegisterGauge registers a gauge metric
func (c *prometheusCollector) RegisterGauge(name, help string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.gauges[name]; exists {
		return
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)

	c.registry.MustRegister(gauge)
	c.gauges[name] = gauge
}

// RegisterHistogram registers a histogram metric
func (c *prometheusCollector) RegisterHistogram(name, help string, labels []string, buckets []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.histograms[name]; exists {
		return
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)

	c.registry.MustRegister(histogram)
	c.histograms[name] = histogram
}

// IncrementCounter increments a counter metric
func (c *prometheusCollector) IncrementCounter(name string, labels map[string]string) {
	c.AddCounter(name, 1, labels)
}

// AddCounter adds a value to a counter metric
func (c *prometheusCollector) AddCounter(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	counter, exists := c.counters[name]
	c.mu.RUnlock()

	if exists {
		counter.With(labels).Add(value)
	}
}

// SetGauge sets a gauge metric
func (c *prometheusCollector) SetGauge(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	gauge, exists := c.gauges[name]
	c.mu.RUnlock()

	if exists {
		gauge.With(labels).Set(value)
	}
}

// ObserveHistogram records an observation in a histogram metric
func (c *prometheusCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	histogram, exists := c.histograms[name]
	c.mu.RUnlock()

	if exists {
		histogram.With(labels).Observe(value)
	}
}

// Handler returns the HTTP handler for metrics exposition
func (c *prometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing the metrics endpoint.
// It blocks until the server stops.
func Serve(collector Collector, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// NoopCollector is a collector that does nothing
type NoopCollector struct{}

// NewNoopCollector creates a no-op metrics collector
func NewNoopCollector() Collector {
	return &NoopCollector{}
}

func (c *NoopCollector) IncrementCounter(name string, labels map[string]string)          {}
func (c *NoopCollector) AddCounter(name string, value float64, labels map[string]string) {}
func (c *NoopCollector) SetGauge(name string, value float64, labels map[string]string)   {}
func (c *NoopCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
}
func (c *NoopCollector) Handler() http.Handler { return http.NotFoundHandler() }
