// Package metric provides the Prometheus metrics of the metadata node.
//
//   - prometheus.go: registry, storage and request metrics, HTTP handler
//   - collector.go: collector for point-in-time storage statistics
//
// Metrics are exposed at /metrics in Prometheus text format.
package metric
