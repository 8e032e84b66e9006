package authapi

import (
	"net/http"

	"github.com/dalemusser/carexps/internal/app/system/apistats"
	"github.com/go-chi/chi/v5"
)

// Routes returns a router with the auth and user endpoints. The caller
// applies CORS and API key authentication.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Route("/auth", func(sr chi.Router) {
		sr.Use(apistats.Middleware(apistats.OpAuth))
		sr.Post("/login", h.Login)
	})

	r.Route("/users", func(sr chi.Router) {
		sr.Use(apistats.Middleware(apistats.OpUsers))
		sr.Get("/", h.ListUsers)
		sr.Post("/", h.CreateUser)
		sr.Post("/tombstones/clear", h.ClearTombstone)
		sr.Route("/{id}", func(ur chi.Router) {
			ur.Get("/", h.GetUser)
			ur.Patch("/", h.UpdateUser)
			ur.Delete("/", h.DeleteUser)
			ur.Post("/password", h.ChangePassword)
			ur.Post("/unlock", h.Unlock)
			ur.Get("/login-stats", h.LoginStats)
		})
	})

	return r
}
