package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the JSON wrapper shared by every HTTP endpoint: a status
// string, the server time, and either a payload or an error message. The
// status CLI decodes this exact shape, so changes here are wire changes.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// JSON writes body with the given HTTP status and a JSON content type.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; this is best effort.
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// ErrorResponse wraps an error message for endpoints that reject requests,
// such as upgrade paths refusing unauthenticated clients.
func ErrorResponse(msg string) Response {
	return Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     msg,
	}
}
