// Package rest exposes the registry over typed JSON envelopes. Every
// response carries a "type" discriminator, matching the original wire
// documentation.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope types.
const (
	typeUserList        = "user_list"
	typeUser            = "user"
	typeUserCreated     = "user_created"
	typeUserUpdated     = "user_updated"
	typeMessageList     = "message_list"
	typeMessage         = "message"
	typeMessageReceived = "message_received"
	typeError           = "error"
)

type envelope struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
	ID    string `json:"id,omitempty"`
	// ResponseID is null when the bot stayed silent. Pointer keeps the
	// key present with an explicit null.
	ResponseID *string `json:"response_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

func writeValue(w http.ResponseWriter, status int, envType string, value any) {
	writeJSON(w, status, envelope{Type: envType, Value: value})
}

func writeID(w http.ResponseWriter, status int, envType, id string) {
	writeJSON(w, status, envelope{Type: envType, ID: id})
}

func writeErrorEnvelope(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Type: typeError, Value: message})
}

// messageReceived always carries the response_id key, null when the
// bot produced no reply.
type messageReceived struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	ResponseID *string `json:"response_id"`
}

func writeMessageReceived(w http.ResponseWriter, status int, id string, responseID *string) {
	writeJSON(w, status, messageReceived{Type: typeMessageReceived, ID: id, ResponseID: responseID})
}
