// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"net/http"
	"time"

	auditapifeature "github.com/dalemusser/carexps/internal/app/features/auditapi"
	authapifeature "github.com/dalemusser/carexps/internal/app/features/authapi"
	healthfeature "github.com/dalemusser/carexps/internal/app/features/health"
	settingsapifeature "github.com/dalemusser/carexps/internal/app/features/settingsapi"
	"github.com/dalemusser/carexps/internal/app/system/apicors"
	"github.com/dalemusser/carexps/internal/app/system/auth"
	"github.com/dalemusser/carexps/internal/app/system/jsonutil"
	"github.com/dalemusser/carexps/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// Route layout:
//   - /api/auth, /api/users: authentication and user lifecycle (authapi)
//   - /api/settings: per-user settings (settingsapi)
//   - /api/audit: read-only audit trail (auditapi)
//   - /health, /ready, /readyz, /livez: probes
//   - /metrics: Prometheus
//
// /api routes use API key auth and their own CORS policy; there is no
// browser session, so no CSRF.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		logger.Error("metrics registration failed", zap.Error(err))
		return nil, err
	}

	svcs := deps.Services

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.RequestID)

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// ─────────────────────────────────────────────────────────────────────────────
	// API Routes
	// ─────────────────────────────────────────────────────────────────────────────
	authHandler := authapifeature.NewHandler(svcs.UserMgmt, logger)
	settingsHandler := settingsapifeature.NewHandler(svcs.Settings, logger)
	auditHandler := auditapifeature.NewHandler(svcs.AuditEvents, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(apicors.Middleware(appCfg.APICORSOrigins...))
		r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))

		r.Mount("/settings", settingsapifeature.Routes(settingsHandler))
		r.Mount("/audit", auditapifeature.Routes(auditHandler))
		r.Mount("/", authapifeature.Routes(authHandler))
	})

	// ─────────────────────────────────────────────────────────────────────────────
	// Probes and metrics
	// ─────────────────────────────────────────────────────────────────────────────
	checks := []healthfeature.Check{healthfeature.MongoCheck(deps.MongoClient)}
	if deps.Redis != nil {
		// Credentials and settings fall back to MongoDB when Redis is down.
		checks = append(checks, healthfeature.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() },
		})
	}
	healthHandler := healthfeature.NewHandler(logger, checks...)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		jsonutil.NotFound(w, "Not found")
	})

	return r, nil
}
