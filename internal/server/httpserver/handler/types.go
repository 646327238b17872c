package handler

import (
	"time"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// PutRowRequest is the request body for POST and PUT /v1/tables/{table}/rows/{key}.
type PutRowRequest struct {
	Value string `json:"value"`

	// ExpectedVersion, when non-zero, makes PUT a compare-and-set.
	ExpectedVersion uint64 `json:"expected_version,omitempty"`
}

// RowResponse represents a row in API responses.
type RowResponse struct {
	Table     int32     `json:"table"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRowResponse(r *domain.Row) RowResponse {
	return RowResponse{
		Table:     int32(r.Table),
		Key:       string(r.Key),
		Value:     string(r.Value),
		Version:   r.Version,
		UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

// ListRowsResponse is the response body for GET /v1/tables/{table}/rows.
type ListRowsResponse struct {
	Items    []RowResponse `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// StatusResponse is the response body for GET /admin/v1/status/summary.
type StatusResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Tables      int    `json:"tables"`
	Rows        int    `json:"rows"`
	WALVersion  uint64 `json:"wal_version"`
	WALBytes    int64  `json:"wal_bytes"`
	WALSegments int    `json:"wal_segments"`
	Uptime      string `json:"uptime"`
}
