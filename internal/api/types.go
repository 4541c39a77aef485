package api

import (
	"encoding/json"
	"net/http"
)

type ChatRequest struct {
	SessionID    string `json:"session_id"`
	Practitioner string `json:"practitioner"`
	Message      string `json:"message"`
	Channel      string `json:"channel,omitempty"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

type MenuRequest struct {
	SessionID    string `json:"session_id"`
	Practitioner string `json:"practitioner"`
	Text         string `json:"text"`
}

type MenuResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
