package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/server/httpserver/handler"
	"github.com/yndnr/metastore-go/internal/storage"
	"github.com/yndnr/metastore-go/internal/storage/wal"
)

// mockServer creates a test HTTP server with custom handlers.
type mockServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []*http.Request
	bodies   []string
}

// newMockServer creates a new mock server.
func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		m.mu.Lock()
		m.requests = append(m.requests, r)
		m.bodies = append(m.bodies, string(body))
		handler, ok := m.handlers[r.Method+" "+r.URL.Path]
		m.mu.Unlock()

		if !ok {
			errorResponse(w, http.StatusNotFound, "MS-ROUTE-4040", "not found")
			return
		}
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// handle registers a handler for "METHOD /path".
func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = handler
}

// last returns the most recent request and its body.
func (m *mockServer) last(t *testing.T) (*http.Request, string) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		t.Fatal("no request received")
	}
	return m.requests[len(m.requests)-1], m.bodies[len(m.bodies)-1]
}

// jsonResponse writes data inside the response envelope.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.NewResponse("req-test", data))
}

// errorResponse writes an error envelope.
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.NewErrorResponse("req-test", code, message, nil))
}

// runApp runs the CLI with args and returns what it wrote to stdout and
// stderr. HOME points at a temp dir so no user config is picked up.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"metastore-cli"}, args...))
	return out.String(), errOut.String(), err
}

// runRemote runs the CLI against server.
func runRemote(t *testing.T, server *mockServer, args ...string) (string, error) {
	t.Helper()
	out, _, err := runApp(t, append([]string{"--server", server.URL}, args...)...)
	return out, err
}

// decodeJSON unmarshals CLI JSON output.
func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
}

// checkpointedMetaDir writes rows through a real engine, checkpoints and
// closes it. It returns the metadata directory.
func checkpointedMetaDir(t *testing.T, rows map[string]string) string {
	t.Helper()
	metaDir := t.TempDir()

	cfg := storage.DefaultConfig(metaDir)
	cfg.TableCount = 4
	cfg.CheckpointInterval = 0
	cfg.CheckpointWALBytes = 0
	cfg.WAL.SyncMode = wal.SyncModeSync
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	ctx := context.Background()
	if err := engine.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	for key, value := range rows {
		table := domain.TableID(1)
		if strings.HasPrefix(key, "db.") {
			table = 2
		}
		row, err := domain.NewRow(table, []byte(key), []byte(value), cfg.TableCount)
		if err != nil {
			t.Fatalf("NewRow: %v", err)
		}
		if _, err := engine.Insert(ctx, row); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if _, err := engine.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return metaDir
}
