package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"bookkeeper/internal/app"
	"bookkeeper/internal/core"

	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error     string              `json:"error"`
	Code      string              `json:"code"`
	RequestID string              `json:"request_id,omitempty"`
	Fields    map[string][]string `json:"fields,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeValidationError writes a 422 with per-field messages.
func writeValidationError(w http.ResponseWriter, r *http.Request, fields map[string][]string) {
	writeErrorResponse(w, http.StatusUnprocessableEntity, errorResponse{
		Error:     "validation failed",
		Code:      "VALIDATION_FAILED",
		RequestID: requestIDFromContext(r.Context()),
		Fields:    fields,
	})
}

// serviceErrorStatus maps a service error onto an HTTP status and error code.
func serviceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, core.ErrTooFewLines), errors.Is(err, core.ErrUnbalanced):
		return http.StatusUnprocessableEntity, "UNBALANCED"
	case errors.Is(err, core.ErrInvalid):
		return http.StatusUnprocessableEntity, "INVALID"
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, core.ErrChecksumMismatch):
		return http.StatusInternalServerError, "CHECKSUM_MISMATCH"
	case errors.Is(err, app.ErrScannerDisabled):
		return http.StatusServiceUnavailable, "SCANNER_DISABLED"
	case errors.Is(err, app.ErrScannerUnavailable):
		return http.StatusBadGateway, "SCANNER_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeServiceError maps err to a response. Internal and upstream errors are
// logged and their message is not echoed to the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := serviceErrorStatus(err)
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway:
		h.log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
		msg := "internal server error"
		if status == http.StatusBadGateway {
			msg = app.ErrScannerUnavailable.Error()
		}
		writeError(w, r, msg, code, status)
		return
	}
	writeError(w, r, err.Error(), code, status)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}
