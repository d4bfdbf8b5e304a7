// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/handler/dto"
	"github.com/usermgmt/usermgmt/internal/service"
)

// Error codes returned in the JSON error body.
const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeInvalidPassword  = "INVALID_PASSWORD"
	CodeUsernameTaken    = "USERNAME_TAKEN"
	CodeAPIKeyNotFound   = "API_KEY_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternalError    = "INTERNAL_ERROR"
)

const (
	msgInternalError     = "An internal error occurred."
	msgInvalidJSON       = "Request body is not valid JSON."
	msgUserNotFound      = "User not found."
	msgPasswordIncorrect = "Password is incorrect."
	msgUsernameTaken     = "Username already exists."
	msgPasswordPolicy    = "Password must be at least 8 characters and contain a digit, an uppercase and a lowercase letter."
	msgAPIKeyNotFound    = "API Key not found."
	msgResourceNotFound  = "Resource not found."
	msgMethodNotAllowed  = "Method not allowed."
)

// NotFound handles 404 responses for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, msgResourceNotFound)
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, msgMethodNotAllowed)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// decodeAndValidate reads a single JSON object from the body into dst and
// runs its validate tags. On failure the 400 response has been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large.")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, msgInvalidJSON)
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, msgInvalidJSON)
		return false
	}
	// Drain so keep-alive connections can be reused.
	_, _ = io.Copy(io.Discard, r.Body)

	if err := dto.Validate(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return false
	}
	return true
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, CodeUserNotFound, msgUserNotFound)
	case errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, CodeUsernameTaken, msgUsernameTaken)
	case errors.Is(err, auth.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, CodeInvalidPassword, msgPasswordPolicy)
	default:
		logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, msgInternalError)
	}
}
