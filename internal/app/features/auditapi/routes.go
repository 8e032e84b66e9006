package auditapi

import (
	"net/http"

	"github.com/dalemusser/carexps/internal/app/system/apistats"
	"github.com/go-chi/chi/v5"
)

// Routes returns the read-only audit router. The caller applies CORS and API
// key authentication.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(apistats.Middleware(apistats.OpAudit))
	r.Get("/", h.List)
	r.Get("/failed-logins", h.FailedLogins)
	return r
}
