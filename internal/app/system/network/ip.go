// Package network extracts caller details from HTTP requests.
package network

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/dalemusser/carexps/internal/domain/models"
)

// maxUserAgent bounds what is copied into failed-attempt records.
const maxUserAgent = 512

// ClientIP returns the caller address for lockout and audit records: the
// first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr. Header values
// that do not parse as an IP are skipped.
func ClientIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		if ip, ok := parseIP(candidate); ok {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

// RequestMeta captures the caller's IP and user agent.
func RequestMeta(r *http.Request) models.RequestMeta {
	ua := r.UserAgent()
	if len(ua) > maxUserAgent {
		ua = ua[:maxUserAgent]
	}
	return models.RequestMeta{IP: ClientIP(r), UserAgent: ua}
}
