// internal/app/features/health/health.go
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Check is one dependency probed by the health endpoints.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
	// Critical dependencies make the service unready when down. A failed
	// non-critical check only degrades /health.
	Critical bool
}

// MongoCheck probes the MongoDB primary.
func MongoCheck(client *mongo.Client) Check {
	return Check{
		Name:     "mongodb",
		Critical: true,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// Handler provides health check endpoints.
type Handler struct {
	checks  []Check
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a new health check Handler.
func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	return &Handler{
		checks:  checks,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
// Provides /health (full check), /health/ready, and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the Kubernetes probe paths to the root router.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// run pings every check (only critical ones when criticalOnly) and reports
// per-service state and whether a critical check failed.
func (h *Handler) run(ctx context.Context, criticalOnly bool) (map[string]string, bool, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	criticalDown, anyDown := false, false
	for _, c := range h.checks {
		if criticalOnly && !c.Critical {
			continue
		}
		if err := c.Ping(ctx); err != nil {
			services[c.Name] = "unavailable"
			anyDown = true
			if c.Critical {
				criticalDown = true
			}
			h.logger.Warn("health check failed", zap.String("service", c.Name), zap.Error(err))
			continue
		}
		services[c.Name] = "ok"
	}
	return services, criticalDown, anyDown
}

// Check pings every dependency. A critical failure answers 503; a
// non-critical one reports "degraded" with 200.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	services, criticalDown, anyDown := h.run(r.Context(), false)
	resp := Response{Status: "ok", Services: services}
	if anyDown {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if criticalDown {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// Ready reports whether every critical dependency answers.
// Used by Kubernetes readiness probes.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	_, criticalDown, _ := h.run(r.Context(), true)

	w.Header().Set("Content-Type", "application/json")
	if criticalDown {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.Write([]byte(`{"status":"ready"}`))
}

// Live checks if the service is alive.
// Used by Kubernetes liveness probes.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"alive"}`))
}
