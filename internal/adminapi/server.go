// Package adminapi is the pool owner's HTTP surface: liveness, readiness,
// worker listing, pool shutdown and Prometheus metrics. Workers reuse its
// metrics router.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tinyserve/pkg/types"
)

// Service defines the methods required by the admin API layer.
type Service interface {
	Status() types.PoolStatus
	Ready(ctx context.Context) bool
	Stop() error
}

// readyTimeout bounds the readiness probe.
var readyTimeout = 3 * time.Second

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: orDefault(corsAllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Accept", "Content-Type", "X-Request-Id"}),
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", handleHealthz)

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if svc.Ready(ctx) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting"))
	})

	r.Get("/workers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Stop(); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logInfo(r, "pool stop requested")
		writeJSON(w, http.StatusAccepted, types.StopPayload{Stopping: true})
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// NewMetricsRouter serves /metrics and /healthz; each worker runs one.
func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Get("/healthz", handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
