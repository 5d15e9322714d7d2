package command

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

// mockServer is an admin API stand-in with per-route handlers.
type mockServer struct {
	*httptest.Server
	mux *http.ServeMux
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{mux: http.NewServeMux()}
	m.Server = httptest.NewServer(m.mux)
	t.Cleanup(m.Close)
	return m
}

func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.mux.HandleFunc(pattern, handler)
}

// jsonResponse writes data inside the server's success envelope.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":       "OK",
		"message":    "success",
		"request_id": "req-test",
		"data":       data,
	})
}

// errorResponse writes an error envelope.
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":       code,
		"message":    message,
		"request_id": "req-test",
	})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decode request body: %v", err)
	}
	return body
}

type runResult struct {
	stdout string
	stderr string
	err    error
}

// runApp runs the real App against server with an isolated config file.
func runApp(t *testing.T, server *mockServer, stdin string, args ...string) runResult {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer

	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)

	full := []string{app.Name, "--config", filepath.Join(t.TempDir(), "cli.yaml")}
	if server != nil {
		full = append(full, "--server", server.URL)
	}
	full = append(full, args...)

	err := app.Run(full)
	return runResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

// Sample payloads

func sampleRun(failed int) map[string]any {
	run := map[string]any{
		"run_id":      "01J0RUN",
		"trigger":     "manual",
		"started_at":  "2024-05-01T12:00:00Z",
		"finished_at": "2024-05-01T12:00:02Z",
		"identities":  2,
		"groups":      3,
		"succeeded":   3 - failed,
		"failed":      failed,
		"bytes":       4096,
	}
	if failed > 0 {
		run["failures"] = []map[string]any{
			{"identity_id": 7, "entity_id": 50, "graph_name": "Shuttle", "code": "GB-JOB-5001", "message": "serialize"},
		}
	}
	return run
}
