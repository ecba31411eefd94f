// Package handlers provides HTTP request handlers for the scanner API.
// This file contains utilities shared across handlers so responses and
// error mapping stay consistent.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/asplund/netasset/internal/api/middleware"
	"github.com/asplund/netasset/internal/errors"
)

// maxRequestSize bounds request bodies at 1MB.
const maxRequestSize = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	}
	writeJSON(w, r, statusCode, response)
}

// writeServiceError maps internal error codes onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, err)
	case errors.IsValidation(err), errors.IsCode(err, errors.CodeRangeInvalid):
		writeError(w, r, http.StatusBadRequest, err)
	case errors.IsCode(err, errors.CodeDuplicateScan):
		writeError(w, r, http.StatusConflict, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

// parseJSON parses the JSON request body into dest, rejecting unknown
// fields and oversized bodies.
func parseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is empty")
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		if err.Error() == "http: request body too large" {
			return fmt.Errorf("request body too large (max 1MB)")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// extractUUIDFromPath extracts the {id} URL path parameter.
func extractUUIDFromPath(r *http.Request) (uuid.UUID, error) {
	vars := mux.Vars(r)
	idStr, exists := vars["id"]
	if !exists {
		return uuid.Nil, fmt.Errorf("id not provided")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %s", idStr)
	}

	return id, nil
}
