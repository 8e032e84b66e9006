package settingsapi

import (
	"net/http"

	"github.com/dalemusser/carexps/internal/app/system/apistats"
	"github.com/go-chi/chi/v5"
)

// Routes returns a router with the settings endpoints. The caller applies
// CORS and API key authentication.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(apistats.Middleware(apistats.OpSettings))

	r.Route("/{userID}", func(sr chi.Router) {
		sr.Get("/", h.Get)
		sr.Patch("/", h.Update)
		sr.Post("/validate", h.Validate)
		sr.Get("/export", h.Export)
		sr.Post("/import", h.Import)
		sr.Post("/reset", h.Reset)
		sr.Post("/sync", h.Sync)
	})

	return r
}
