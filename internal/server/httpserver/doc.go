// Package httpserver provides the HTTP/HTTPS server for metastore.
//
// This package implements the node's external API using stdlib net/http:
//
//   - Row endpoints: /v1/tables/{table}/rows, /v1/tables/{table}/rows/{key}
//   - Admin endpoints: /admin/v1/* (index status, checkpoints, version)
//   - Health endpoints: /health, /ready, /metrics
//
// Features:
//
//   - TLS with certificate hot-reload and optional client certificates
//   - Middleware chain: Recover, RequestID, RateLimit, NetworkACL, Audit
//   - Graceful shutdown with configurable timeout
//   - Prometheus request metrics
package httpserver
