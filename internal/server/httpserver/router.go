package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/yndnr/gridbackup-go/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// RunContext bounds background work started over HTTP, such as manual
	// backup runs. Defaults to context.Background().
	RunContext context.Context

	Backups handler.Backups

	// Metrics serves GET /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	// Observer counts finished requests. May be nil.
	Observer RequestObserver

	Logger *slog.Logger

	// RateLimiter limits requests per client IP. Nil disables limiting.
	RateLimiter *RateLimiter

	// AdminAllowList is the IP/CIDR allowlist for /admin/v1 (empty = no restriction).
	AdminAllowList []string

	// EnableAudit logs every request.
	EnableAudit bool
}

// NewRouter wires the handlers and middleware.
//
// Health and metrics endpoints skip rate limiting and the admin allowlist.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := handler.New(cfg.RunContext, cfg.Backups, log)

	var auditLog *slog.Logger
	if cfg.EnableAudit {
		auditLog = log.With("component", "audit")
	}

	base := []Middleware{
		RequestID(),
		Audit(auditLog, cfg.Observer),
		Recover(log),
	}

	health := Chain(h, base...)

	admin := append([]Middleware(nil), base...)
	if cfg.RateLimiter != nil {
		admin = append(admin, RateLimit(cfg.RateLimiter))
	}
	if len(cfg.AdminAllowList) > 0 {
		admin = append(admin, NetworkACL(&NetworkACLConfig{
			AllowList: cfg.AdminAllowList,
			Logger:    log,
		}))
	}
	adminHandler := Chain(h, admin...)

	mux := http.NewServeMux()
	mux.Handle("GET /health", health)
	mux.Handle("GET /ready", health)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, Recover(log)))
	}
	mux.Handle("/admin/v1/", adminHandler)

	return mux
}
