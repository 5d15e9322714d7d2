// Package main provides the entry point for gridbackup-server.
//
// The server hosts the in-memory world and the backup engine:
//
//   - scheduled sweeps that snapshot every owned grid group
//   - an admin HTTP API for listing, saving, running and restoring backups
//   - Prometheus metrics and health checks
//
// Usage:
//
//	gridbackup-server [flags]
//	gridbackup-server -config /etc/gridbackup/server.yaml
//
// Log level changes in the config file take effect without a restart.
package main
