package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/N1c093/diverad/internal/divera"
	"github.com/N1c093/diverad/internal/log"
)

// errorBody is the JSON shape of every error response. Code is a stable
// machine-readable identifier, message is for humans.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; the client may see a truncated body.
		l := log.Base()
		l.Error().Err(err).Int("status", code).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// respondUpstreamError maps client error taxonomy to HTTP status codes.
// Auth failures against Divera are a gateway problem from the caller's
// view, not theirs.
func respondUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, divera.ErrCircuitOpen):
		respondError(w, http.StatusServiceUnavailable, "circuit_open", "upstream temporarily disabled after repeated failures")
	case errors.Is(err, divera.ErrAuth):
		respondError(w, http.StatusBadGateway, "upstream_auth", "access key rejected by Divera")
	case errors.Is(err, divera.ErrConnection):
		respondError(w, http.StatusServiceUnavailable, "upstream_unreachable", "Divera API not reachable")
	case errors.Is(err, divera.ErrBadResponse):
		respondError(w, http.StatusBadGateway, "upstream_bad_response", "Divera API returned an unreadable payload")
	case errors.Is(err, divera.ErrStatusNotFound):
		respondError(w, http.StatusUnprocessableEntity, "unknown_status", err.Error())
	case errors.Is(err, divera.ErrUpstream):
		respondError(w, http.StatusBadGateway, "upstream_error", "Divera API returned an error")
	default:
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func respondUnknownUnit(w http.ResponseWriter) {
	respondError(w, http.StatusNotFound, "unknown_unit", "no such unit configured")
}

func respondNotReady(w http.ResponseWriter) {
	respondError(w, http.StatusServiceUnavailable, "not_ready", "unit has no successful pull yet")
}
