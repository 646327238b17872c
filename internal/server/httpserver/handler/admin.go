package handler

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/infra/buildinfo"
)

// checkpointTimeout bounds an admin-triggered checkpoint.
const checkpointTimeout = 5 * time.Minute

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	h.writeJSON(w, r, http.StatusOK, &StatusResponse{
		Status:      "running",
		Version:     buildinfo.Get().Version,
		Tables:      h.engine.TableCount(),
		Rows:        h.engine.Count(),
		WALVersion:  h.engine.Version(),
		WALBytes:    stats.WALBytes,
		WALSegments: stats.WALSegments,
		Uptime:      time.Since(h.started).Truncate(time.Second).String(),
	})
}

// handleVersion handles GET /admin/v1/version.
func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, buildinfo.Get())
}

// handleIndexStatus handles GET /admin/v1/index.
func (h *Handler) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.engine.IndexStatus())
}

// handleIndexFile handles GET /admin/v1/index/file and streams the
// current index file.
func (h *Handler) handleIndexFile(w http.ResponseWriter, r *http.Request) {
	st := h.engine.IndexStatus()
	if !st.Enabled {
		h.handleServiceError(w, r, domain.ErrIndexUnavailable.WithDetails("index disabled"))
		return
	}

	f, err := os.Open(st.Path)
	if errors.Is(err, fs.ErrNotExist) {
		h.handleServiceError(w, r, domain.ErrIndexUnavailable.WithDetails("no index built yet"))
		return
	}
	if err != nil {
		h.handleServiceError(w, r, domain.ErrStorageError.WithCause(err))
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		h.handleServiceError(w, r, domain.ErrStorageError.WithCause(err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="index"`)
	http.ServeContent(w, r, "index", fi.ModTime(), f)
}

// handleCheckpoint handles POST /admin/v1/index/checkpoint.
func (h *Handler) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if !h.checkpointing.CompareAndSwap(false, true) {
		h.handleServiceError(w, r, domain.ErrServerBusy.WithDetails("checkpoint already running"))
		return
	}
	defer h.checkpointing.Store(false)

	// A dropped client connection must not abort the checkpoint halfway.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), checkpointTimeout)
	defer cancel()

	start := time.Now()
	res, err := h.engine.Checkpoint(ctx)
	if err != nil {
		h.handleServiceError(w, r, domain.ErrStorageError.WithDetails(err.Error()).WithCause(err))
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"index":        res,
		"elapsed_ms":   time.Since(start).Milliseconds(),
		"triggered_at": start.UTC().Format(time.RFC3339),
	})
}
