package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/storage/memory"
)

// maxBodyBytes bounds row request bodies, leaving room for JSON escaping
// of a maximal value.
const maxBodyBytes = 8 << 20

// parseTable reads and range-checks the {table} path value.
func (h *Handler) parseTable(r *http.Request) (domain.TableID, error) {
	raw := r.PathValue("table")
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, domain.ErrInvalidArgument.WithDetails("table must be an integer: " + raw)
	}
	t := domain.TableID(id)
	if !t.Valid(h.engine.TableCount()) {
		return 0, domain.ErrInvalidArgument.WithDetails("unknown table " + t.String())
	}
	return t, nil
}

// parseRowRequest decodes the body of an insert or update into a row.
func (h *Handler) parseRowRequest(w http.ResponseWriter, r *http.Request) (*domain.Row, *PutRowRequest, error) {
	table, err := h.parseTable(r)
	if err != nil {
		return nil, nil, err
	}

	var req PutRowRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, nil, domain.ErrInvalidArgument.WithDetails("invalid request body")
	}

	row, err := domain.NewRow(table, []byte(r.PathValue("key")), []byte(req.Value), h.engine.TableCount())
	if err != nil {
		return nil, nil, err
	}
	return row, &req, nil
}

// handleListRows handles GET /v1/tables/{table}/rows.
func (h *Handler) handleListRows(w http.ResponseWriter, r *http.Request) {
	table, err := h.parseTable(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := &memory.ListFilter{
		Prefix:    q.Get("prefix"),
		SortOrder: q.Get("sort"),
		Page:      1,
		PageSize:  memory.DefaultPageSize,
	}
	if filter.SortOrder != "" && filter.SortOrder != "asc" && filter.SortOrder != "desc" {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("sort must be asc or desc"))
		return
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("page must be a positive integer"))
			return
		}
		filter.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("page_size must be a positive integer"))
			return
		}
		filter.PageSize = min(n, memory.MaxPageSize)
	}

	rows, total, err := h.engine.List(r.Context(), table, filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]RowResponse, len(rows))
	for i, row := range rows {
		items[i] = toRowResponse(row)
	}
	h.writeJSON(w, r, http.StatusOK, &ListRowsResponse{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

// handleGetRow handles GET /v1/tables/{table}/rows/{key}.
func (h *Handler) handleGetRow(w http.ResponseWriter, r *http.Request) {
	table, err := h.parseTable(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	row, err := h.engine.Get(r.Context(), table, []byte(r.PathValue("key")))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toRowResponse(row))
}

// handleInsertRow handles POST /v1/tables/{table}/rows/{key}.
func (h *Handler) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	row, _, err := h.parseRowRequest(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	stored, err := h.engine.Insert(r.Context(), row)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, toRowResponse(stored))
}

// handleUpdateRow handles PUT /v1/tables/{table}/rows/{key}.
func (h *Handler) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	row, req, err := h.parseRowRequest(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	stored, err := h.engine.Update(r.Context(), row, req.ExpectedVersion)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toRowResponse(stored))
}

// handleDeleteRow handles DELETE /v1/tables/{table}/rows/{key}.
func (h *Handler) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	table, err := h.parseTable(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	old, err := h.engine.Delete(r.Context(), table, []byte(r.PathValue("key")))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toRowResponse(old))
}
