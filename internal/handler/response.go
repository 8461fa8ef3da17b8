// Package handler provides HTTP handlers for the gateway's REST
// configuration API.
package handler

import (
	"encoding/json"
	"net/http"
)

// Envelope is the REST API's uniform response wrapper.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WriteJSON writes a raw JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes `{success: false, error: message}` with status.
func WriteError(w http.ResponseWriter, status int, _ string, message string) {
	WriteJSON(w, status, Envelope{Success: false, Error: message})
}

// WriteSuccess writes `{success: true, data: ...}` with 200 OK.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteSuccessStatus writes `{success: true, data: ...}` with a custom status.
func WriteSuccessStatus(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}
