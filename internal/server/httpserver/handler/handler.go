package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/storage"
	"github.com/yndnr/metastore-go/internal/storage/memory"
	"github.com/yndnr/metastore-go/internal/storage/walindex"
	"github.com/yndnr/metastore-go/internal/telemetry/logger"
	"github.com/yndnr/metastore-go/internal/telemetry/metric"
)

// Engine is the storage surface the handlers need. *storage.Engine
// implements it.
type Engine interface {
	TableCount() int
	Get(ctx context.Context, table domain.TableID, key []byte) (*domain.Row, error)
	List(ctx context.Context, table domain.TableID, filter *memory.ListFilter) ([]*domain.Row, int, error)
	Insert(ctx context.Context, row *domain.Row) (*domain.Row, error)
	Update(ctx context.Context, row *domain.Row, expectedVersion uint64) (*domain.Row, error)
	Delete(ctx context.Context, table domain.TableID, key []byte) (*domain.Row, error)
	Count() int
	Version() uint64
	Stats() metric.Stats
	IndexStatus() storage.IndexStatus
	Checkpoint(ctx context.Context) (*walindex.BuildResult, error)
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	engine  Engine
	metrics *metric.Registry
	logger  *slog.Logger
	mux     *http.ServeMux
	started time.Time

	// Set while an admin-triggered checkpoint runs.
	checkpointing atomic.Bool
}

// New creates a new Handler over engine. metrics may be nil.
func New(engine Engine, metrics *metric.Registry, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		engine:  engine,
		metrics: metrics,
		logger:  log,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	// Health endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	h.mux.Handle("GET /metrics", h.metrics.Handler())

	// Row endpoints
	h.mux.HandleFunc("GET /v1/tables/{table}/rows", h.handleListRows)
	h.mux.HandleFunc("GET /v1/tables/{table}/rows/{key}", h.handleGetRow)
	h.mux.HandleFunc("POST /v1/tables/{table}/rows/{key}", h.handleInsertRow)
	h.mux.HandleFunc("PUT /v1/tables/{table}/rows/{key}", h.handleUpdateRow)
	h.mux.HandleFunc("DELETE /v1/tables/{table}/rows/{key}", h.handleDeleteRow)

	// Admin endpoints
	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)
	h.mux.HandleFunc("GET /admin/v1/version", h.handleVersion)
	h.mux.HandleFunc("GET /admin/v1/index", h.handleIndexStatus)
	h.mux.HandleFunc("GET /admin/v1/index/file", h.handleIndexFile)
	h.mux.HandleFunc("POST /admin/v1/index/checkpoint", h.handleCheckpoint)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID extracts the request ID from context or header.
func getRequestID(r *http.Request) string {
	if reqID := logger.RequestIDFromContext(r.Context()); reqID != "" {
		return reqID
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts engine errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		if status >= http.StatusInternalServerError {
			logger.L(r.Context()).Error("request failed", "code", code, "error", err)
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "MS-SYS-5000", "internal server error", nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasPrefix(code, "MS-ARG-"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "MS-SYS-503"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
