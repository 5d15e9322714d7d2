// Package handler implements the GridBackup admin API endpoints.
//
// Every JSON response uses the Response envelope. Domain errors are
// mapped to HTTP status codes from the numeric suffix of their code.
package handler
