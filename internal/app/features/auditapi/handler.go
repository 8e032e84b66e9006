// Package auditapi gives operators read access to the audit trail over the
// JSON API. Nothing here writes; events are recorded by auditlog.
//
// Endpoints (mounted at /api/audit):
//   - GET /               ?user_id&email&category&event_type&since&until&failures&limit&offset
//   - GET /failed-logins  ?since&limit (since defaults to the last 24 hours)
//
// Times are RFC 3339.
package auditapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/carexps/internal/app/store/audit"
	"github.com/dalemusser/carexps/internal/app/system/jsonutil"
	"go.uber.org/zap"
)

// Reader is the audit store behind the API. *audit.Store implements it.
type Reader interface {
	Find(ctx context.Context, f audit.Filter, limit, offset int64) ([]audit.Event, error)
	Count(ctx context.Context, f audit.Filter) (int64, error)
	FailedLogins(ctx context.Context, since time.Time, limit int64) ([]audit.Event, error)
}

// DefaultFailedLoginWindow applies when failed-logins gets no since.
const DefaultFailedLoginWindow = 24 * time.Hour

type Handler struct {
	events Reader
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(events Reader, logger *zap.Logger) *Handler {
	return &Handler{events: events, logger: logger, now: time.Now}
}

// ListResponse is one page of events plus the total matching the filter.
type ListResponse struct {
	Events []audit.Event `json:"events"`
	Total  int64         `json:"total"`
	Limit  int64         `json:"limit"`
	Offset int64         `json:"offset"`
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		UserID:    q.Get("user_id"),
		Email:     q.Get("email"),
		Category:  q.Get("category"),
		EventType: q.Get("event_type"),
		Failures:  q.Get("failures") == "true",
	}
	var bad string
	if f.Since, bad = parseTime(q.Get("since"), "since"); bad != "" {
		jsonutil.BadRequest(w, bad)
		return
	}
	if f.Until, bad = parseTime(q.Get("until"), "until"); bad != "" {
		jsonutil.BadRequest(w, bad)
		return
	}
	limit, offset, bad := paging(q.Get("limit"), q.Get("offset"))
	if bad != "" {
		jsonutil.BadRequest(w, bad)
		return
	}

	events, err := h.events.Find(r.Context(), f, limit, offset)
	if err != nil {
		h.unavailable(w, "audit find", err)
		return
	}
	total, err := h.events.Count(r.Context(), f)
	if err != nil {
		h.unavailable(w, "audit count", err)
		return
	}
	jsonutil.OK(w, ListResponse{Events: events, Total: total, Limit: limit, Offset: offset})
}

// FailedLogins handles GET /failed-logins.
func (h *Handler) FailedLogins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, bad := parseTime(q.Get("since"), "since")
	if bad != "" {
		jsonutil.BadRequest(w, bad)
		return
	}
	if since.IsZero() {
		since = h.now().Add(-DefaultFailedLoginWindow)
	}
	limit, _, bad := paging(q.Get("limit"), "")
	if bad != "" {
		jsonutil.BadRequest(w, bad)
		return
	}

	events, err := h.events.FailedLogins(r.Context(), since, limit)
	if err != nil {
		h.unavailable(w, "audit failed logins", err)
		return
	}
	jsonutil.OK(w, events)
}

func (h *Handler) unavailable(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", zap.Error(err))
	jsonutil.Error(w, http.StatusServiceUnavailable, "Audit log is temporarily unavailable")
}

func parseTime(v, name string) (time.Time, string) {
	if v == "" {
		return time.Time{}, ""
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, name + " must be an RFC 3339 time."
	}
	return t, ""
}

// paging parses limit and offset. Limit is clamped to audit.MaxLimit and
// defaults to audit.DefaultLimit.
func paging(limitStr, offsetStr string) (limit, offset int64, bad string) {
	limit = audit.DefaultLimit
	if limitStr != "" {
		n, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, "limit must be a positive number."
		}
		limit = min(n, audit.MaxLimit)
	}
	if offsetStr != "" {
		n, err := strconv.ParseInt(offsetStr, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, "offset must be zero or more."
		}
		offset = n
	}
	return limit, offset, ""
}
