package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
	"github.com/boddenberg/leadflow-go/internal/port"
	"github.com/boddenberg/leadflow-go/internal/service"
)

var tracer = otel.Tracer("handler")

// RouterConfig carries the optional parts of the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	Probes             []port.Probe
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(leads *service.LeadService, authSvc *service.AuthService, metrics *observability.Metrics, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(cfg.Probes))
	r.Get("/readyz", readyzHandler(cfg.Probes, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if authSvc == nil || leads == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "unavailable", "lead service not configured")
			}))
			return
		}

		// Public
		r.Post("/auth/token", tokenHandler(authSvc, logger))

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			r.Get("/me/permissions", myPermissionsHandler(leads, logger))
			r.With(RequirePermission(leads, domain.PermManageUsers, logger)).
				Get("/roles/{role}/permissions", rolePermissionsHandler())
			r.With(RequirePermission(leads, domain.PermViewReports, logger)).
				Get("/metrics/leads", leadMetricsHandler(metrics))

			r.Route("/leads", func(r chi.Router) {
				r.With(RequirePermission(leads, domain.PermViewLeads, logger)).Get("/", listLeadsHandler(leads, logger))
				r.Post("/", createLeadHandler(leads, logger))

				r.Route("/{leadId}", func(r chi.Router) {
					r.Get("/", getLeadHandler(leads, logger))
					r.Post("/claim", claimLeadHandler(leads, logger))
					r.Patch("/progress", setProgressHandler(leads, logger))
					r.Post("/contacts", logContactHandler(leads, logger))
					r.With(RequirePermission(leads, domain.PermViewLeads, logger)).
						Get("/contacts", listContactsHandler(leads, logger))
				})
			})
		})
	})

	return r
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// ============================================================
// Health
// ============================================================

func runProbes(ctx context.Context, probes []port.Probe) []domain.ServiceHealth {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "leadflow-api", Status: "healthy", LastChecked: now},
	}
	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		start := time.Now()
		err := p.Check(probeCtx)
		cancel()

		status := "healthy"
		if err != nil {
			status = "degraded"
		}
		services = append(services, domain.ServiceHealth{
			Name:        p.Name,
			Status:      status,
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		})
	}
	return services
}

func healthzHandler(probes []port.Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := runProbes(r.Context(), probes)

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler(probes []port.Probe, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, s := range runProbes(r.Context(), probes) {
			if s.Status != "healthy" {
				logger.Warn("readiness probe failed", zap.String("dependency", s.Name))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "dependency": s.Name})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func leadMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLeadSnapshot())
	}
}
