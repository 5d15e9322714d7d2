package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name       string
		server     string
		wantPrefix string
	}{
		{"with http prefix", "http://localhost:8080", "http://localhost:8080"},
		{"with https prefix", "https://localhost:8080", "https://localhost:8080"},
		{"without prefix", "localhost:8080", "http://localhost:8080"},
		{"trailing slash", "localhost:8080/", "http://localhost:8080"},
		{"hostname only", "backup.example.com", "http://backup.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.server, 0)
			if client.BaseURL() != tt.wantPrefix {
				t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), tt.wantPrefix)
			}
			if client.client.Timeout != DefaultTimeout {
				t.Errorf("Timeout = %v, want %v", client.client.Timeout, DefaultTimeout)
			}
		})
	}
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "gridbackup-cli/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path != "/admin/v1/status/summary" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"code":"OK","message":"success","data":{"running":true}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second)
	resp, err := client.Get(context.Background(), "/admin/v1/status/summary")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	var data struct {
		Running bool `json:"running"`
	}
	if err := ParseResponse(resp, &data); err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if !data.Running {
		t.Error("data not unwrapped from envelope")
	}
}

func TestHTTPClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"code":"OK","data":{"entity_id":42}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second)
	resp, err := client.Post(context.Background(), "/admin/v1/backups/save", map[string]string{"grid": "42"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	var data struct {
		EntityID int64 `json:"entity_id"`
	}
	if err := ParseResponse(resp, &data); err != nil || data.EntityID != 42 {
		t.Fatalf("ParseResponse() = %+v, %v", data, err)
	}
}

func TestHTTPClient_PostNilBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "" {
			t.Errorf("Content-Type set for empty body: %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"code":"OK","data":{"started":true}}`))
	}))
	defer server.Close()

	resp, err := NewHTTPClient(server.URL, time.Second).Post(context.Background(), "/admin/v1/backups/run", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ParseResponse(resp, nil); err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantText string
	}{
		{
			name:     "error envelope",
			status:   http.StatusNotFound,
			body:     `{"code":"GB-GRID-4040","message":"no grids found","request_id":"req-1","details":"Ghost"}`,
			wantCode: "GB-GRID-4040",
			wantText: "[GB-GRID-4040] no grids found: Ghost",
		},
		{
			name:     "plain text error",
			status:   http.StatusBadGateway,
			body:     "bad gateway",
			wantText: "request failed with status 502",
		},
		{
			name:     "malformed success",
			status:   http.StatusOK,
			body:     "not json",
			wantText: "parse response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.WriteHeader(tt.status)
			rec.WriteString(tt.body)

			err := ParseResponse(rec.Result(), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantText)
			}

			var apiErr *APIError
			if tt.wantCode == "" {
				if errors.As(err, &apiErr) {
					t.Errorf("unexpected APIError %+v", apiErr)
				}
				return
			}
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %T is not *APIError", err)
			}
			if apiErr.Code != tt.wantCode || apiErr.Status != tt.status || apiErr.RequestID != "req-1" {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestHTTPClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	if _, err := NewHTTPClient(addr, time.Second).Get(context.Background(), "/health"); err == nil {
		t.Fatal("expected connection error")
	}
}
