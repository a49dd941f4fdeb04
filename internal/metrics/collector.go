// Package metrics exposes the server's request counters as Prometheus
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ehrlich-b/go-sflw/internal/stats"
)

// Collector implements prometheus.Collector over the shared stats counters.
// The counters are atomics, so scrapes never coordinate with the event loop.
type Collector struct {
	stats    *stats.Stats
	uptimeMS func() uint64

	requests        *prometheus.Desc
	badFrames       *prometheus.Desc
	routesInstalled *prometheus.Desc
	lastLatency     *prometheus.Desc
	avgLatency      *prometheus.Desc
	uptime          *prometheus.Desc
}

// NewCollector builds a collector over st; uptimeMS supplies the server
// uptime in milliseconds.
func NewCollector(st *stats.Stats, uptimeMS func() uint64) *Collector {
	return &Collector{
		stats:    st,
		uptimeMS: uptimeMS,
		requests: prometheus.NewDesc(
			"sflw_requests_total",
			"Total requests handled across all connections.",
			nil, nil),
		badFrames: prometheus.NewDesc(
			"sflw_bad_frames_total",
			"Frames rejected as corrupt (bad magic, version, size, or CRC).",
			nil, nil),
		routesInstalled: prometheus.NewDesc(
			"sflw_routes_installed_total",
			"Route records successfully installed by ROUTE_UPDATE.",
			nil, nil),
		lastLatency: prometheus.NewDesc(
			"sflw_last_request_latency_microseconds",
			"Latency of the most recent request.",
			nil, nil),
		avgLatency: prometheus.NewDesc(
			"sflw_avg_request_latency_microseconds",
			"Running mean request latency.",
			nil, nil),
		uptime: prometheus.NewDesc(
			"sflw_uptime_milliseconds",
			"Milliseconds since server start.",
			nil, nil),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.requests
	descs <- c.badFrames
	descs <- c.routesInstalled
	descs <- c.lastLatency
	descs <- c.avgLatency
	descs <- c.uptime
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()

	metrics <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(snap.TotalRequests))
	metrics <- prometheus.MustNewConstMetric(c.badFrames, prometheus.CounterValue, float64(snap.BadFrames))
	metrics <- prometheus.MustNewConstMetric(c.routesInstalled, prometheus.CounterValue, float64(snap.RoutesInstalled))
	metrics <- prometheus.MustNewConstMetric(c.lastLatency, prometheus.GaugeValue, snap.LastLatencyMS*1000)
	metrics <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, snap.AvgLatencyMS*1000)
	metrics <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(c.uptimeMS()))
}

// Compile-time interface check
var _ prometheus.Collector = (*Collector)(nil)
