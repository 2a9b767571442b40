package httpx

import (
	"encoding/json"
	"net/http"
)

// Error codes shared by the gate and the API handlers.
const (
	ErrorCodeUnauthenticated    = "unauthenticated"
	ErrorCodeForbidden          = "forbidden"
	ErrorCodeServiceUnavailable = "service_unavailable"
	ErrorCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeRequestTooLarge    = "request_too_large"
)

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard {"error", "error_description"} body.
func WriteError(w http.ResponseWriter, status int, code, description string) {
	WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// writeUnauthenticated is the single 401 body every protected route emits.
// Clients key their refresh logic on the error code.
func writeUnauthenticated(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, ErrorCodeUnauthenticated, "authentication required")
}

func writeForbidden(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, ErrorCodeForbidden, "administrator role required")
}
