// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stowbox/stowbox/internal/handler/dto"
	"github.com/stowbox/stowbox/internal/middleware"
	"github.com/stowbox/stowbox/internal/service"
)

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// describeError maps a service error to its status and public body.
// Authentication failures share one message so responses never reveal whether an account exists.
func describeError(err error) (int, dto.ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrUserNotFound):
		return http.StatusBadRequest, dto.ErrorResponse{Code: "INVALID_CREDENTIALS", Error: "could not verify, please try again"}
	case errors.Is(err, service.ErrNoSession):
		return http.StatusUnauthorized, dto.ErrorResponse{Code: "UNAUTHORIZED", Error: "authentication required"}
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, dto.ErrorResponse{Code: "RATE_LIMITED", Error: "too many requests, retry later"}
	case errors.Is(err, service.ErrDelivery):
		return http.StatusBadGateway, dto.ErrorResponse{Code: "DELIVERY_FAILED", Error: "could not send the code, please try again"}
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, dto.ErrorResponse{Code: "FILE_TOO_LARGE", Error: "file exceeds the maximum size"}
	case errors.Is(err, service.ErrFileNotFound):
		return http.StatusNotFound, dto.ErrorResponse{Code: "FILE_NOT_FOUND", Error: "file not found"}
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, dto.ErrorResponse{Code: "FORBIDDEN", Error: "only the owner can change this file"}
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, dto.ErrorResponse{Code: "INVALID_INPUT", Error: publicMessage(err)}
	case errors.Is(err, service.ErrStoreRead), errors.Is(err, service.ErrStoreWrite):
		return http.StatusServiceUnavailable, dto.ErrorResponse{Code: "STORE_UNAVAILABLE", Error: "storage temporarily unavailable"}
	default:
		return http.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL_ERROR", Error: "an internal error occurred"}
	}
}

// publicMessage returns the validation detail of an ErrInvalidInput chain.
func publicMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return service.ErrInvalidInput.Error()
}

// handleServiceError maps service errors to HTTP responses, logging server-side failures.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := describeError(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
	}
	writeJSON(w, status, body)
}
