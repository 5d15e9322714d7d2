// Package metric provides Prometheus metrics for GridBackup.
//
// It exposes backup job outcomes, sweep runs, snapshot volume and HTTP
// request counts, plus live gauges pulled from the queue and scheduler.
package metric
