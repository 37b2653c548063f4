package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"mdshare/pkg/apperror"
	"mdshare/pkg/logger"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// hiddenResponse answers both a missing document and one the caller may not
// see, so the two cannot be told apart.
var hiddenResponse = ErrorResponse{Error: "not_found", Message: "Document not found"}

const maxBodyBytes = 5 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Sugar.Errorf("Failed to encode JSON response: %v", err)
		}
	}
}

// errorStatus maps a service error to its HTTP status and public body.
func errorStatus(err error) (int, ErrorResponse) {
	if apperror.IsHidden(err) {
		return http.StatusNotFound, hiddenResponse
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			return http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: appErr.Message, Field: appErr.Field}
		case errors.Is(err, apperror.ErrUserNotFound):
			return http.StatusNotFound, ErrorResponse{Error: "user_not_found", Message: appErr.Message, Field: appErr.Field}
		case errors.Is(err, apperror.ErrShareNotFound):
			return http.StatusNotFound, ErrorResponse{Error: "share_not_found", Message: appErr.Message}
		case errors.Is(err, apperror.ErrNotOwner):
			return http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: appErr.Message}
		case errors.Is(err, apperror.ErrReadOnly):
			return http.StatusForbidden, ErrorResponse{Error: "read_only", Message: "You only have read access to this document"}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Sugar.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "Invalid request body"})
		return false
	}
	return true
}
