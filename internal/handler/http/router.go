// Package http serves the operational endpoints of the souvenir binaries:
// liveness, readiness and Prometheus metrics.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/SouvenirShop/pkg/health"
	"github.com/utafrali/SouvenirShop/pkg/middleware"
)

// Ops endpoint paths.
const (
	PathLive    = "/health/live"
	PathReady   = "/health/ready"
	PathMetrics = "/metrics"
)

// NewRouter creates a chi router with the ops endpoints registered. Probe
// and scrape requests are not logged, and scrapes are not counted.
func NewRouter(serviceName string, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger, PathLive, PathReady, PathMetrics))
	r.Use(middleware.PrometheusMetrics(serviceName, PathMetrics))

	r.Get(PathLive, healthHandler.LivenessHandler())
	r.Get(PathReady, healthHandler.ReadinessHandler())
	r.Method(http.MethodGet, PathMetrics, promhttp.Handler())

	return r
}

// NewServer wraps the ops router in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
