package api

import (
	"jobtracker/internal/dispatcher"
	"jobtracker/internal/health"
	"log/slog"
	"net/http"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Session       SessionSource
	Metrics       http.Handler // Prometheus handler, optional
	HealthChecker *health.Checker
	Dispatcher    dispatcher.Dispatcher
	Token         string       // bearer token for /v1 endpoints, empty = open
	Logger        *slog.Logger // request log, defaults to the "api" component
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Session, cfg.Dispatcher)

	mux := http.NewServeMux()

	// Probes and metrics - no auth required
	if cfg.HealthChecker != nil {
		mux.Handle("GET /healthz", cfg.HealthChecker.LivenessHandler())
		mux.Handle("GET /readyz", cfg.HealthChecker.ReadinessHandler())
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	auth := AuthMiddleware(cfg.Token)
	mux.Handle("GET /v1/session", auth(http.HandlerFunc(handler.GetSession)))
	mux.Handle("GET /v1/webhooks", auth(http.HandlerFunc(handler.GetWebhookStats)))

	return Chain(mux, RecoveryMiddleware(), LoggingMiddleware(cfg.Logger))
}
