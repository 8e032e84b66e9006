// Package apicors provides CORS middleware for the JSON API, which
// authenticates with a bearer API key instead of cookies. No credentials
// are allowed, so a wildcard origin is safe.
package apicors

import (
	"net/http"
	"strings"
)

const (
	allowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	allowHeaders = "Authorization, Content-Type, Accept"
	maxAge       = "86400"
)

// Middleware returns CORS middleware for the API routes. With no origins
// (or a single "*") any origin is allowed; otherwise only the listed
// origins receive CORS headers. Preflight requests are answered with 204.
//
//	r.Route("/api", func(r chi.Router) {
//	    r.Use(apicors.Middleware(appCfg.APICORSOrigins...))
//	    r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
//	})
func Middleware(origins ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := len(origins) == 0
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				h.Add("Vary", "Origin")
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
