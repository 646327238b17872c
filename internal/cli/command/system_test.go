package command

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/yndnr/metastore-go/internal/cli/connection"
	"github.com/yndnr/metastore-go/internal/infra/buildinfo"
	"github.com/yndnr/metastore-go/internal/server/httpserver/handler"
	"github.com/yndnr/metastore-go/internal/storage/walindex"
)

func TestStatus(t *testing.T) {
	server := newMockServer(t)
	server.handle("GET /admin/v1/status/summary", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, handler.StatusResponse{
			Status:      "running",
			Version:     "1.2.3",
			Tables:      12,
			Rows:        420,
			WALVersion:  9001,
			WALBytes:    3 << 20,
			WALSegments: 2,
			Uptime:      "1h0m0s",
		})
	})

	out, err := runRemote(t, server, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"running", "1.2.3", "420", "9001"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "WAL Size") {
		t.Errorf("narrow output should omit WAL size:\n%s", out)
	}

	out, err = runRemote(t, server, "-w", "status")
	if err != nil {
		t.Fatalf("status -w: %v", err)
	}
	if !strings.Contains(out, "3.0 MB") {
		t.Errorf("wide output should show WAL size:\n%s", out)
	}
}

func TestHealth(t *testing.T) {
	server := newMockServer(t)
	server.handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	server.handle("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusServiceUnavailable, "MS-SYS-5030", "recovery in progress")
	})

	out, err := runRemote(t, server, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, "Server is healthy") {
		t.Errorf("unexpected output: %q", out)
	}

	_, err = runRemote(t, server, "health", "--ready")
	var apiErr *connection.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "MS-SYS-5030" {
		t.Errorf("expected readiness failure, got %v", err)
	}
}

func TestHealth_Unreachable(t *testing.T) {
	_, _, err := runApp(t, "--server", "127.0.0.1:1", "--timeout", "1s", "health")
	if err == nil || !strings.Contains(err.Error(), "server unhealthy") {
		t.Errorf("expected unhealthy error, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	server := newMockServer(t)
	server.handle("GET /admin/v1/version", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, buildinfo.Info{Version: "9.9.9", Commit: "abc123"})
	})

	out, err := runRemote(t, server, "-o", "json", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var view versionView
	decodeJSON(t, out, &view)
	if view.Server == nil || view.Server.Version != "9.9.9" {
		t.Errorf("unexpected server version: %+v", view.Server)
	}
	if view.Client.Version == "" {
		t.Error("client version should be set")
	}

	out, _, err = runApp(t, "version", "--client")
	if err != nil {
		t.Fatalf("version --client: %v", err)
	}
	if !strings.Contains(out, "client") || strings.Contains(out, "server") {
		t.Errorf("client-only output:\n%s", out)
	}
}

func TestCheckpoint(t *testing.T) {
	server := newMockServer(t)
	server.handle("POST /admin/v1/index/checkpoint", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"index": &walindex.BuildResult{
				ID:         "01JCHECK",
				Segment:    "wal-00000007.log",
				Entries:    5,
				Bytes:      4096,
				MaxVersion: 77,
			},
			"elapsed_ms":   12,
			"triggered_at": "2026-01-02T03:04:05Z",
		})
	})

	out, err := runRemote(t, server, "checkpoint")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	for _, want := range []string{"01JCHECK", "wal-00000007.log", "4.0 KB", "77", "12ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckpoint_Busy(t *testing.T) {
	server := newMockServer(t)
	server.handle("POST /admin/v1/index/checkpoint", func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusServiceUnavailable, "MS-SYS-5032", "checkpoint already running")
	})

	_, err := runRemote(t, server, "checkpoint")
	var apiErr *connection.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "MS-SYS-5032" {
		t.Errorf("expected busy error, got %v", err)
	}
}

func TestCheckpoint_IndexDisabled(t *testing.T) {
	server := newMockServer(t)
	server.handle("POST /admin/v1/index/checkpoint", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{"index": nil, "elapsed_ms": 1})
	})

	out, err := runRemote(t, server, "checkpoint")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if !strings.Contains(out, "disabled") {
		t.Errorf("expected disabled index in output:\n%s", out)
	}
}
