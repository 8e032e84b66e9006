// Package jsonutil provides helper functions for JSON API responses.
//
// Every response uses the same envelope:
//
//	{"status": "success", "data": ...}
//	{"status": "error", "error": "message"}
package jsonutil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// MaxBodyBytes bounds request bodies accepted by Decode.
const MaxBodyBytes = 1 << 20

// Status values used in the envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the shape of every API response body.
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Success writes a success envelope carrying data.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, Envelope{Status: StatusSuccess, Data: data})
}

// OK writes a 200 OK success envelope.
func OK(w http.ResponseWriter, data any) {
	Success(w, http.StatusOK, data)
}

// Created writes a 201 Created success envelope.
func Created(w http.ResponseWriter, data any) {
	Success(w, http.StatusCreated, data)
}

// NoContent writes a 204 No Content response (no body).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error envelope with the given status code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Status: StatusError, Error: message})
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 Unauthorized error response.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

// Forbidden writes a 403 Forbidden error response.
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, message)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// Conflict writes a 409 Conflict error response.
func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, message)
}

// Locked writes a 423 Locked error response.
func Locked(w http.ResponseWriter, message string) {
	Error(w, http.StatusLocked, message)
}

// InternalError writes a 500 Internal Server Error response.
// Do not expose internal details to clients - log the actual error separately.
func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, message)
}

// ValidationError writes a 400 Bad Request error envelope whose data lists
// every validation message.
func ValidationError(w http.ResponseWriter, messages []string) {
	msg := "validation failed"
	if len(messages) > 0 {
		msg = messages[0]
	}
	JSON(w, http.StatusBadRequest, Envelope{
		Status: StatusError,
		Error:  msg,
		Data:   map[string]any{"errors": messages},
	})
}

// Decode reads and decodes JSON from the request body into v.
// Bodies over MaxBodyBytes and trailing data are rejected.
//
//	var input LoginInput
//	if err := jsonutil.Decode(w, r, &input); err != nil {
//	    jsonutil.BadRequest(w, err.Error())
//	    return
//	}
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
	if dec.More() {
		return errors.New("invalid JSON body")
	}
	return nil
}
