// Package logger provides structured logging for GridBackup.
//
// It wraps log/slog:
//
//   - logger.go: handler setup, dynamic level, package-level helpers
//   - context.go: request id propagation
//   - redact.go: masking of secrets in log attributes
//
// Every component receives a *slog.Logger obtained from Slog(); the
// redaction runs in the handler so it applies to all of them.
package logger
