package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/carexps/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func okCheck(name string, critical bool) Check {
	return Check{Name: name, Critical: critical, Ping: func(context.Context) error { return nil }}
}

func downCheck(name string, critical bool) Check {
	return Check{Name: name, Critical: critical, Ping: func(context.Context) error { return errors.New("down") }}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandler_Check(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
	}{
		{"all ok", []Check{okCheck("mongodb", true), okCheck("cache", false)}, http.StatusOK, "ok"},
		{"cache down", []Check{okCheck("mongodb", true), downCheck("cache", false)}, http.StatusOK, "degraded"},
		{"mongo down", []Check{downCheck("mongodb", true), okCheck("cache", false)}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(zap.NewNop(), tt.checks...)
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Check() status = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode(t, rec)
			if resp.Status != tt.wantStatus {
				t.Errorf("response status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Services) != len(tt.checks) {
				t.Errorf("services = %v, want %d entries", resp.Services, len(tt.checks))
			}
		})
	}
}

func TestHandler_Ready_IgnoresNonCritical(t *testing.T) {
	h := NewHandler(zap.NewNop(), okCheck("mongodb", true), downCheck("cache", false))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Ready() status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); body != `{"status":"ready"}` {
		t.Errorf("Ready() body = %q", body)
	}
}

func TestHandler_Ready_CriticalDown(t *testing.T) {
	h := NewHandler(zap.NewNop(), downCheck("mongodb", true))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Ready() status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandler_Live(t *testing.T) {
	h := NewHandler(zap.NewNop())

	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Live() status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); body != `{"status":"alive"}` {
		t.Errorf("Live() body = %q, want %q", body, `{"status":"alive"}`)
	}
}

func TestMongoCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)

	h := NewHandler(zap.NewNop(), MongoCheck(db.Client()))
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Check() status = %d, want %d", rec.Code, http.StatusOK)
	}
	if resp := decode(t, rec); resp.Services["mongodb"] != "ok" {
		t.Errorf("mongodb status = %q, want ok", resp.Services["mongodb"])
	}
}

func TestMountRootEndpoints(t *testing.T) {
	h := NewHandler(zap.NewNop(), okCheck("mongodb", true))
	r := chi.NewRouter()
	MountRootEndpoints(r, h)
	r.Mount("/health", Routes(h))

	for _, path := range []string{"/ready", "/readyz", "/livez", "/health", "/health/ready", "/health/live"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("%s status = %d, want %d", path, rec.Code, http.StatusOK)
			}
		})
	}
}
