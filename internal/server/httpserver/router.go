package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/metastore-go/internal/server/httpserver/handler"
	"github.com/yndnr/metastore-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Engine serves rows and index administration.
	Engine handler.Engine

	// Metrics receives request metrics and serves /metrics. May be nil.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger *slog.Logger

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// RateLimit is the per-IP rate limit for row endpoints (requests/second, 0 = off).
	RateLimit int

	// EnableAudit enables audit logging for row and admin requests.
	EnableAudit bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := handler.New(cfg.Engine, cfg.Metrics, log)

	mux := http.NewServeMux()

	// Health and metrics endpoints
	probe := Chain(h, Recover(log), RequestID())
	mux.Handle("GET /health", probe)
	mux.Handle("GET /ready", probe)
	mux.Handle("GET /metrics", probe)

	// Row endpoints
	rowMiddlewares := []Middleware{Recover(log), RequestID()}
	if cfg.RateLimit > 0 {
		rowMiddlewares = append(rowMiddlewares, RateLimit(RateLimitConfig{RequestsPerSecond: cfg.RateLimit}))
	}
	if cfg.EnableAudit {
		rowMiddlewares = append(rowMiddlewares, Audit(log, cfg.Metrics))
	}
	rows := Chain(h, rowMiddlewares...)

	mux.Handle("GET /v1/tables/{table}/rows", rows)
	mux.Handle("GET /v1/tables/{table}/rows/{key}", rows)
	mux.Handle("POST /v1/tables/{table}/rows/{key}", rows)
	mux.Handle("PUT /v1/tables/{table}/rows/{key}", rows)
	mux.Handle("DELETE /v1/tables/{table}/rows/{key}", rows)

	// Admin endpoints - optional network ACL
	adminMiddlewares := []Middleware{Recover(log), RequestID()}
	if len(cfg.AdminAllowList) > 0 {
		adminMiddlewares = append(adminMiddlewares, NetworkACL(&NetworkACLConfig{
			AllowList: cfg.AdminAllowList,
			Logger:    log,
		}))
	}
	if cfg.EnableAudit {
		adminMiddlewares = append(adminMiddlewares, Audit(log, cfg.Metrics))
	}
	admin := Chain(h, adminMiddlewares...)

	mux.Handle("GET /admin/v1/status/summary", admin)
	mux.Handle("GET /admin/v1/version", admin)
	mux.Handle("GET /admin/v1/index", admin)
	mux.Handle("GET /admin/v1/index/file", admin)
	mux.Handle("POST /admin/v1/index/checkpoint", admin)

	return mux
}
