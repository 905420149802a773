// Package app assembles the HTTP surface: router, middleware stack and
// readiness checks.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/brokerpoint/polizza-analyzer/internal/adapter/httpserver"
	"github.com/brokerpoint/polizza-analyzer/internal/adapter/observability"
	"github.com/brokerpoint/polizza-analyzer/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	// Batch analysis holds the connection for several provider rounds.
	r.Use(httpserver.TimeoutMiddleware(5 * time.Minute))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit the endpoints that spend provider tokens.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Post("/v1/policies", srv.UploadPolicyHandler())
		wr.Post("/v1/analyze", srv.AnalyzeHandler())
		wr.Post("/v1/analyze/batch", srv.BatchAnalyzeHandler())
		wr.Post("/v1/compare", srv.CompareHandler())
		wr.Post("/v1/guarantees/generate", srv.GenerateHandler())
		wr.Post("/v1/sections/extract", srv.ExtractSectionHandler())
	})

	// Read-only endpoints
	r.Get("/v1/guarantees", srv.ListGuaranteesHandler())
	r.Get("/v1/extractions/{company}", srv.ListExtractionsHandler())
	r.Get("/v1/comparisons/{guarantee}", srv.GetComparisonHandler())

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}
