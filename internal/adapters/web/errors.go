package web

import (
	"encoding/json"
	"net/http"

	ierr "garments-erp/internal/errors"
	"garments-erp/internal/logger"
)

type errorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

// writeErr maps a service error to its HTTP status and kind. Server-side
// failures are logged with the underlying cause, which never reaches the client.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := ierr.HTTPStatusFromErr(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeErrorResponse(w, status, errorResponse{
		Error:     ierr.DisplayMessage(err),
		Code:      ierr.KindOf(err),
		RequestID: requestIDFromContext(r.Context()),
		Details:   ierr.ReportableDetails(err),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
