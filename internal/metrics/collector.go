// Package metrics provides the Prometheus side of emby-exporter.
//
// Two kinds of metrics live on the same registry:
//   - Library metrics (emby_*): labeled gauges registered through Registry and
//     written by the label-tree reconcilers.
//   - Exporter metrics (emby_exporter_*): health of the poll loop itself,
//     owned by Collector.
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/emby-exporter/internal/labeltree"
)

// =============================================================================
// Collector
// =============================================================================

// Collector manages the exporter's own metrics.
type Collector struct {
	up              prometheus.Gauge
	pollsTotal      *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	pollP50         prometheus.Gauge
	pollP95         prometheus.Gauge
	lastSuccess     prometheus.Gauge
	malformedTotal  *prometheus.CounterVec
	anomaliesTotal  *prometheus.CounterVec
	sinkErrorsTotal *prometheus.CounterVec
	seriesKnown     *prometheus.GaugeVec
	seriesZeroed    *prometheus.GaugeVec
	buildInfo       *prometheus.GaugeVec

	startTime time.Time

	// Poll duration percentiles over the whole run
	mu           sync.Mutex
	digest       *tdigest.TDigest
	polls        int64
	failures     int64
	lastDuration time.Duration
	lastSuccessT time.Time
	lastError    string
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version  string
	Upstream string
}

// NewCollector creates a collector on the default registerer.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emby_exporter_up",
			Help: "Whether the last poll of the Emby API succeeded (1) or failed (0)",
		}),
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emby_exporter_polls_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "emby_exporter_poll_duration_seconds",
			Help:    "Duration of complete poll cycles",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		pollP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emby_exporter_poll_duration_p50_seconds",
			Help: "Poll cycle duration 50th percentile since start",
		}),
		pollP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emby_exporter_poll_duration_p95_seconds",
			Help: "Poll cycle duration 95th percentile since start",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emby_exporter_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll",
		}),
		malformedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emby_exporter_malformed_snapshots_total",
			Help: "Snapshots rejected because they did not match the metric's labels",
		}, []string{"metric"}),
		anomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emby_exporter_shape_anomalies_total",
			Help: "Label keys whose shape changed between polls",
		}, []string{"metric"}),
		sinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emby_exporter_gauge_set_errors_total",
			Help: "Series updates refused by the gauge",
		}, []string{"metric"}),
		seriesKnown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "emby_exporter_series",
			Help: "Label paths published per metric",
		}, []string{"metric"}),
		seriesZeroed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "emby_exporter_series_zeroed",
			Help: "Label paths set to 0 in the last poll because they disappeared since the previous one",
		}, []string{"metric"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "emby_exporter_build_info",
			Help: "Exporter build information (value always 1)",
		}, []string{"version", "upstream"}),

		startTime: time.Now(),
		digest:    tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		c.up,
		c.pollsTotal,
		c.pollDuration,
		c.pollP50,
		c.pollP95,
		c.lastSuccess,
		c.malformedTotal,
		c.anomaliesTotal,
		c.sinkErrorsTotal,
		c.seriesKnown,
		c.seriesZeroed,
		c.buildInfo,
	)

	c.buildInfo.WithLabelValues(cfg.Version, cfg.Upstream).Set(1)
	// Both results exist from the start so rate() has a baseline.
	c.pollsTotal.WithLabelValues("success")
	c.pollsTotal.WithLabelValues("error")

	return c
}

// =============================================================================
// Update Methods
// =============================================================================

// RecordPoll records the outcome of one poll cycle.
func (c *Collector) RecordPoll(d time.Duration, err error) {
	c.pollDuration.Observe(d.Seconds())

	c.mu.Lock()
	c.polls++
	c.lastDuration = d
	c.digest.Add(d.Seconds(), 1)
	p50 := c.digest.Quantile(0.50)
	p95 := c.digest.Quantile(0.95)
	if err != nil {
		c.failures++
		c.lastError = err.Error()
	} else {
		c.lastSuccessT = time.Now()
		c.lastError = ""
	}
	lastSuccess := c.lastSuccessT
	c.mu.Unlock()

	c.pollP50.Set(p50)
	c.pollP95.Set(p95)

	if err != nil {
		c.up.Set(0)
		c.pollsTotal.WithLabelValues("error").Inc()
		return
	}
	c.up.Set(1)
	c.pollsTotal.WithLabelValues("success").Inc()
	c.lastSuccess.Set(float64(lastSuccess.UnixNano()) / 1e9)
}

// RecordMetric records what one reconcile did to a metric.
func (c *Collector) RecordMetric(name string, res labeltree.Result, series int) {
	c.seriesKnown.WithLabelValues(name).Set(float64(series))
	c.seriesZeroed.WithLabelValues(name).Set(float64(res.Zeroed))
	if res.Anomalies > 0 {
		c.anomaliesTotal.WithLabelValues(name).Add(float64(res.Anomalies))
	}
	if res.SinkErrs > 0 {
		c.sinkErrorsTotal.WithLabelValues(name).Add(float64(res.SinkErrs))
	}
}

// RecordMalformed counts a rejected snapshot.
func (c *Collector) RecordMalformed(name string) {
	c.malformedTotal.WithLabelValues(name).Inc()
}

// =============================================================================
// Summary
// =============================================================================

// PollStats is a point-in-time view of the poll loop's health.
type PollStats struct {
	Uptime       time.Duration
	Polls        int64
	Failures     int64
	LastDuration time.Duration
	DurationP50  time.Duration
	DurationP95  time.Duration
	LastSuccess  time.Time
	LastError    string
}

// Stats returns the current poll statistics.
func (c *Collector) Stats() PollStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := PollStats{
		Uptime:       time.Since(c.startTime),
		Polls:        c.polls,
		Failures:     c.failures,
		LastDuration: c.lastDuration,
		LastSuccess:  c.lastSuccessT,
		LastError:    c.lastError,
	}
	if c.polls > 0 {
		s.DurationP50 = seconds(c.digest.Quantile(0.50))
		s.DurationP95 = seconds(c.digest.Quantile(0.95))
	}
	return s
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
