package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/benvon/smart-survey/internal/request"
)

const (
	// DefaultPageSize is the default page size for admin listings
	DefaultPageSize = 100
	// MaxPageSize is the maximum page size for admin listings
	MaxPageSize = 500
	// maxErrorMessageLength bounds messages echoed back to clients
	maxErrorMessageLength = 200
)

// Generic messages for failures whose cause is only logged.
const (
	msgInternalError = "Internal server error"
	msgInvalidBody   = "Invalid request body"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage bounds the length of a message sent to the client
func sanitizeErrorMessage(message string) string {
	r := []rune(message)
	if len(r) > maxErrorMessageLength {
		return string(r[:maxErrorMessageLength]) + "..."
	}
	return message
}

// respondJSONError sends {"error": message}
func respondJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": sanitizeErrorMessage(message)})
}

// respondDecodeError maps a request.DecodeJSON failure to 413 or 400.
func respondDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrBodyTooLarge):
		respondJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, request.ErrInvalidJSON):
		respondJSONError(w, http.StatusBadRequest, request.ErrInvalidJSON.Error())
	default:
		respondJSONError(w, http.StatusBadRequest, msgInvalidBody)
	}
}

// successResponse is the body of a successful write
type successResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty"`
	ResultID string `json:"resultId,omitempty"`
}

// parsePagination reads limit and offset query parameters. Invalid values
// fall back to the defaults; limit is capped at MaxPageSize.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = DefaultPageSize
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, MaxPageSize)
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}
