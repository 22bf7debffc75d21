// Package metrics holds the Prometheus instrumentation shared by the
// schematic, connectivity and hierarchy packages. A nil *Collector is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Namespace prefixes every metric name
const Namespace = "ots"

// Collector holds all Prometheus metrics for the toolkit
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Parse metrics
	DocumentsParsed prometheus.Counter
	ParseDuration   prometheus.Histogram
	ParseFailures   *prometheus.CounterVec

	// Serialize metrics
	SerializedBytes *prometheus.CounterVec

	// Analysis metrics
	NetRebuilds      prometheus.Counter
	AnalysisDuration prometheus.Histogram

	// Hierarchy metrics
	SheetsLoaded prometheus.Counter
	SheetsFailed *prometheus.CounterVec
	LoaderCache  *prometheus.CounterVec
}

// NewCollector creates a collector backed by its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		DocumentsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "documents_parsed_total",
			Help:      "Total number of schematic documents parsed",
		}),
		ParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "parse_duration_seconds",
			Help:      "Schematic parse duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "parse_failures_total",
			Help:      "Total number of failed parses by error kind",
		}, []string{"kind"}),
		SerializedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "serialized_bytes_total",
			Help:      "Total number of bytes written by the serializer",
		}, []string{"mode"}),
		NetRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "net_rebuilds_total",
			Help:      "Total number of connectivity graph rebuilds",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Connectivity analysis duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SheetsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sheets_loaded_total",
			Help:      "Total number of sheet instances loaded",
		}),
		SheetsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sheets_failed_total",
			Help:      "Total number of sheet instances that failed to load",
		}, []string{"reason"}),
		LoaderCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "loader_cache_total",
			Help:      "Child schematic cache lookups by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		c.DocumentsParsed,
		c.ParseDuration,
		c.ParseFailures,
		c.SerializedBytes,
		c.NetRebuilds,
		c.AnalysisDuration,
		c.SheetsLoaded,
		c.SheetsFailed,
		c.LoaderCache,
	)

	return c
}

// ObserveParse records one parse attempt. kind is empty on success.
func (c *Collector) ObserveParse(d time.Duration, kind string) {
	if c == nil {
		return
	}
	if kind != "" {
		c.ParseFailures.WithLabelValues(kind).Inc()
		return
	}
	c.DocumentsParsed.Inc()
	c.ParseDuration.Observe(d.Seconds())
}

// ObserveSerialize records the size of one serialized document
func (c *Collector) ObserveSerialize(mode string, n int) {
	if c == nil {
		return
	}
	c.SerializedBytes.WithLabelValues(mode).Add(float64(n))
}

// ObserveRebuild records one connectivity rebuild
func (c *Collector) ObserveRebuild(d time.Duration) {
	if c == nil {
		return
	}
	c.NetRebuilds.Inc()
	c.AnalysisDuration.Observe(d.Seconds())
}

// SheetLoaded counts a successfully loaded sheet instance
func (c *Collector) SheetLoaded() {
	if c == nil {
		return
	}
	c.SheetsLoaded.Inc()
}

// SheetFailed counts a sheet instance that could not be loaded
func (c *Collector) SheetFailed(reason string) {
	if c == nil {
		return
	}
	c.SheetsFailed.WithLabelValues(reason).Inc()
}

// CacheLookup counts a loader cache hit or miss
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.LoaderCache.WithLabelValues(result).Inc()
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Gather returns the current metric families
func (c *Collector) Gather() ([]*dto.MetricFamily, error) {
	if c == nil {
		return nil, nil
	}
	return c.registry.Gather()
}
