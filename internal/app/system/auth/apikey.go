package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/carexps/internal/app/system/jsonutil"
	"github.com/dalemusser/carexps/internal/app/system/network"
	"go.uber.org/zap"
)

// APIKeyAuth returns middleware that requires "Authorization: Bearer <key>".
//
//	r.Route("/api", func(r chi.Router) {
//	    r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
//	    ...
//	})
//
// When validKey is empty the API is open and a warning is logged once.
// ValidateConfig refuses an empty key in prod, so this only happens in dev.
func APIKeyAuth(validKey string, logger *zap.Logger) func(http.Handler) http.Handler {
	if validKey == "" {
		logger.Warn("api_key not configured - API routes are unauthenticated")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := bearerToken(r)
			if !ok {
				logger.Debug("API request rejected: missing or malformed Authorization header",
					zap.String("path", r.URL.Path),
				)
				jsonutil.Unauthorized(w, "Missing or invalid Authorization header (expected: Bearer <api-key>)")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(validKey)) != 1 {
				logger.Warn("API request rejected: invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("ip", network.ClientIP(r)),
				)
				jsonutil.Unauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
