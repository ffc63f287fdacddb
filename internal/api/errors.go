package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/middleware"
)

// Common error codes used throughout the API. The domain codes mirror the
// fault kinds so a client sees the same vocabulary the engine raises.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeInvalidState indicates the action was attempted outside its
	// legal lifecycle state.
	ErrCodeInvalidState = "invalid_state"

	// ErrCodePrecondition indicates a state-transition guard was unmet.
	ErrCodePrecondition = "precondition_failed"

	// ErrCodeForbidden indicates the acting person may not perform the
	// operation.
	ErrCodeForbidden = "forbidden"

	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized = "unauthorized"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limit_exceeded"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code will be automatically logged by the logging middleware
// for all 4xx and 5xx responses if you call SetErrorCode on the context
// and pass the updated context to WriteError.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Update the context in the response writer if supported (for logging middleware)
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteFault maps a domain error to its HTTP representation and writes it.
// Errors with no fault kind are treated as internal errors; their details
// stay in the logs, not the response body.
func WriteFault(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	code := string(kind)
	message := ""
	var fe *fault.Error
	if errors.As(err, &fe) {
		message = fe.Message
	}

	status := StatusCodeMapping(code)
	if kind == "" {
		code = ErrCodeInternal
		message = "An internal error occurred"
		status = http.StatusInternalServerError
		slog.ErrorContext(r.Context(), "unclassified error", "error", err)
	}

	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, status, code, message)
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
// This is a convenience function to map error codes to HTTP status codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidState:
		return http.StatusConflict
	case ErrCodePrecondition:
		return http.StatusUnprocessableEntity
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON success response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
