// Package metrics records per-run snapshot metrics with Prometheus.
//
// A run is a short-lived process, so metrics live in a private registry
// owned by a Collector and are pushed to a Pushgateway once at the end of
// the run instead of being scraped.
//
// # Basic Usage
//
//	collector := metrics.NewCollector("mysql")
//	timer := metrics.NewTimer()
//	rows, err := extractAndUpload(ctx)
//	collector.ObserveDataset("users", rows, timer.Stop(), err)
//	collector.Push(ctx, cfg.Observability.PushgatewayURL, cfg.Observability.MetricsJob, logger)
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Collector holds the metrics of one run.
type Collector struct {
	source   string
	registry *prometheus.Registry

	datasetRows     *prometheus.GaugeVec
	datasetDuration *prometheus.HistogramVec
	datasetFailures *prometheus.CounterVec
	snapshotBytes   *prometheus.GaugeVec
	lastRun         prometheus.Gauge
}

// NewCollector creates a collector with its own registry for one source.
// The source is not a metric label; Push adds it as a grouping key.
func NewCollector(source string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		source:   source,
		registry: reg,
		datasetRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sqlsnap_dataset_rows",
				Help: "Rows written to the last snapshot of a dataset",
			},
			[]string{"dataset"},
		),
		datasetDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sqlsnap_dataset_duration_seconds",
				Help:    "Time spent extracting and uploading a dataset",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900},
			},
			[]string{"dataset", "status"},
		),
		datasetFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlsnap_dataset_failures_total",
				Help: "Datasets that failed to produce a snapshot",
			},
			[]string{"dataset"},
		),
		snapshotBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sqlsnap_snapshot_bytes",
				Help: "Size of the last uploaded snapshot object",
			},
			[]string{"dataset", "format"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sqlsnap_last_run_timestamp_seconds",
				Help: "Unix time at which the run finished",
			},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDataset records the outcome of one dataset.
func (c *Collector) ObserveDataset(dataset string, rows int, d time.Duration, err error) {
	status := getStatus(err)
	c.datasetDuration.WithLabelValues(dataset, status).Observe(d.Seconds())
	if err != nil {
		c.datasetFailures.WithLabelValues(dataset).Inc()
		return
	}
	c.datasetRows.WithLabelValues(dataset).Set(float64(rows))
}

// ObserveSnapshot records the size of an uploaded object.
func (c *Collector) ObserveSnapshot(dataset, format string, size int64) {
	c.snapshotBytes.WithLabelValues(dataset, format).Set(float64(size))
}

// Push sends the registry to a Pushgateway. An empty url disables pushing.
// Failures are logged and never fail the run.
func (c *Collector) Push(ctx context.Context, url, job string, log *zap.Logger) {
	if url == "" {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	c.lastRun.SetToCurrentTime()

	err := push.New(url, job).
		Gatherer(c.registry).
		Grouping("source", c.source).
		PushContext(ctx)
	if err != nil {
		log.Warn("Failed to push metrics", zap.String("url", url), zap.Error(err))
		return
	}
	log.Debug("Pushed metrics", zap.String("url", url), zap.String("job", job))
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer started.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
