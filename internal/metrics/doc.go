// Package metrics holds the Prometheus collectors for review runs. A CLI run
// is short-lived, so instead of serving /metrics the collectors are written
// to .conclave/reviews/metrics.prom for node_exporter's textfile collector.
package metrics
