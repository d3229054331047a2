package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as JSON with a stable machine-readable code
//   - Mapped to the right HTTP status from the domain error type
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls s.respondError(w, r, err)
//  3. Error is classified via classifyError into status + code
//  4. Technical error + context is logged with request ID for correlation
//  5. The JSON body carries the message and code

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/grovekeeper/intervention-uploader/internal/core"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs the technical error server-side and writes a JSON error
// response with a status derived from the domain error type.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)

	requestID := middleware.GetReqID(r.Context())

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
		"request_id", requestID,
	)

	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// classifyError maps domain errors to an HTTP status and a stable code.
func classifyError(err error) (int, string) {
	var (
		ingestErr   *core.IngestionError
		geomErr     *core.GeometryParseError
		unsupported *core.UnsupportedGeometryTypeError
		configErr   *core.ConfigIncompleteError
	)

	switch {
	case errors.Is(err, core.ErrRecordNotFound):
		return http.StatusNotFound, "RECORD_NOT_FOUND"
	case errors.Is(err, core.ErrNoMatches):
		return http.StatusNotFound, "NO_MATCHING_RECORDS"
	case errors.Is(err, core.ErrRunInProgress):
		return http.StatusConflict, "RUN_IN_PROGRESS"
	case errors.As(err, &configErr):
		return http.StatusPreconditionFailed, "CONFIG_INCOMPLETE"
	case errors.As(err, &ingestErr):
		return http.StatusBadRequest, "INGESTION_FAILED"
	case errors.As(err, &geomErr):
		return http.StatusBadRequest, "GEOMETRY_INVALID"
	case errors.As(err, &unsupported):
		return http.StatusBadRequest, "GEOMETRY_UNSUPPORTED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// writeBadRequest is a shortcut for request-shape problems that never reach
// the domain layer.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "BAD_REQUEST"})
}
