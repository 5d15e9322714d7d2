// Package connection talks to the gridbackup admin API.
//
// HTTPClient wraps net/http with the base URL, timeout and user agent the
// CLI needs. ParseResponse unwraps the server's response envelope and turns
// error envelopes into *APIError values.
package connection
