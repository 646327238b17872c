package metric

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time view of storage state.
type Stats struct {
	RowsPerTable []int
	WALBytes     int64
	WALSegments  int
}

// StatsFunc returns current storage statistics.
type StatsFunc func() Stats

// Collector exports Stats on every scrape.
type Collector struct {
	stats StatsFunc

	rows        *prometheus.Desc
	walBytes    *prometheus.Desc
	walSegments *prometheus.Desc
}

// NewCollector creates a collector backed by fn.
func NewCollector(fn StatsFunc) *Collector {
	return &Collector{
		stats: fn,
		rows: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "rows", "live"),
			"Live rows per table", []string{"table"}, nil),
		walBytes: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "wal", "size_bytes"),
			"Total size of WAL segments", nil, nil),
		walSegments: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "wal", "segments"),
			"Number of WAL segments on disk", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rows
	ch <- c.walBytes
	ch <- c.walSegments
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for t, n := range s.RowsPerTable {
		ch <- prometheus.MustNewConstMetric(c.rows, prometheus.GaugeValue, float64(n), strconv.Itoa(t))
	}
	ch <- prometheus.MustNewConstMetric(c.walBytes, prometheus.GaugeValue, float64(s.WALBytes))
	ch <- prometheus.MustNewConstMetric(c.walSegments, prometheus.GaugeValue, float64(s.WALSegments))
}
