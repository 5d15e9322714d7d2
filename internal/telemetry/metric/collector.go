package metric

import "github.com/prometheus/client_golang/prometheus"

// StateSource reports live state at scrape time.
type StateSource interface {
	// InFlight is the number of backup jobs currently holding a grid key.
	InFlight() int
	// Running reports whether a sweep is active.
	Running() bool
}

// Collector turns a StateSource into gauges on every scrape.
type Collector struct {
	src StateSource

	inflight *prometheus.Desc
	active   *prometheus.Desc
}

// NewCollector creates a collector over src.
func NewCollector(src StateSource) *Collector {
	return &Collector{
		src: src,
		inflight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "jobs_inflight"),
			"Backup jobs currently running.", nil, nil),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "scheduler", "run_active"),
			"1 while a backup sweep is running.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inflight
	ch <- c.active
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(c.src.InFlight()))
	active := 0.0
	if c.src.Running() {
		active = 1
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, active)
}
