package jsonutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("body is not JSON: %v (%q)", err, rec.Body.String())
	}
	return got
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "200 OK with data",
			status:     http.StatusOK,
			data:       map[string]string{"message": "hello"},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"hello"}`,
		},
		{
			name:       "nil data",
			status:     http.StatusOK,
			data:       nil,
			wantStatus: http.StatusOK,
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSON(rec, tt.status, tt.data)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			body := strings.TrimSpace(rec.Body.String())
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"count": 2})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	body := strings.TrimSpace(rec.Body.String())
	if want := `{"status":"success","data":{"count":2}}`; body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]string{"id": "abc"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	got := decodeEnvelope(t, rec)
	if got["status"] != StatusSuccess {
		t.Errorf("status field = %v, want success", got["status"])
	}
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter, string)
		wantStatus int
	}{
		{"BadRequest", BadRequest, http.StatusBadRequest},
		{"Unauthorized", Unauthorized, http.StatusUnauthorized},
		{"Forbidden", Forbidden, http.StatusForbidden},
		{"NotFound", NotFound, http.StatusNotFound},
		{"Conflict", Conflict, http.StatusConflict},
		{"Locked", Locked, http.StatusLocked},
		{"InternalError", InternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, "something went wrong")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := strings.TrimSpace(rec.Body.String())
			if want := `{"status":"error","error":"something went wrong"}`; body != want {
				t.Errorf("body = %q, want %q", body, want)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, []string{"Invalid theme value", "Session timeout must be between 1 and 480 minutes"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	got := decodeEnvelope(t, rec)
	if got["error"] != "Invalid theme value" {
		t.Errorf("error = %v, want first message", got["error"])
	}
	data, _ := got["data"].(map[string]any)
	errs, _ := data["errors"].([]any)
	if len(errs) != 2 {
		t.Errorf("data.errors = %v, want 2 entries", data["errors"])
	}

	rec = httptest.NewRecorder()
	ValidationError(rec, nil)
	if got := decodeEnvelope(t, rec); got["error"] != "validation failed" {
		t.Errorf("error = %v, want generic message", got["error"])
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name:    "valid JSON",
			body:    `{"email":"a@b.org","password":"Secret1"}`,
			wantErr: false,
		},
		{
			name:    "invalid JSON",
			body:    `{invalid}`,
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: true,
		},
		{
			name:    "trailing document",
			body:    `{"a":1}{"b":2}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var got map[string]any
			err := Decode(rec, req, &got)

			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_StructBinding(t *testing.T) {
	type Input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nurse@clinic.org","password":"Secret1"}`))
	var in Input
	if err := Decode(httptest.NewRecorder(), req, &in); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Email != "nurse@clinic.org" || in.Password != "Secret1" {
		t.Errorf("Decode() = %+v", in)
	}
}

func TestDecode_LargeBody(t *testing.T) {
	big := `{"blob":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

	var got map[string]any
	err := Decode(httptest.NewRecorder(), req, &got)
	if err == nil || err.Error() != "request body too large" {
		t.Errorf("Decode() error = %v, want body too large", err)
	}
}
