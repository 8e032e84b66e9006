// Package apistats provides middleware that records JSON API request
// counts and latency in the Prometheus collectors of package metrics.
package apistats

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/metrics"
)

// Operation groups used as the "op" label.
const (
	OpAuth     = "auth"
	OpUsers    = "users"
	OpSettings = "settings"
	OpAudit    = "audit"
)

// Middleware returns HTTP middleware that records every request under op.
func Middleware(op string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrapped, r)

			metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
			metrics.APIRequests.WithLabelValues(op, StatusClass(wrapped.statusCode)).Inc()
		})
	}
}

// StatusClass returns "2xx", "4xx" and so on for code.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// responseWrapper wraps http.ResponseWriter to capture status code.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *responseWrapper) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
