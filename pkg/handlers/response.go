package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// errorStatus maps a service error to an HTTP status and error code. The
// message never includes the wrapped driver error.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, apperrors.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress", "A sync run is already in progress"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict", "Resource already exists"
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindTransport:
		return http.StatusBadGateway, "upstream_unavailable", "Contract registry could not be reached"
	case apperrors.KindCache:
		return http.StatusServiceUnavailable, "cache_unavailable", "Cache backend is unavailable"
	case apperrors.KindValidation:
		return http.StatusBadRequest, "invalid_request", "Request could not be processed"
	}
	return http.StatusInternalServerError, "internal_error", "Internal server error"
}
