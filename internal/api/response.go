// Package api provides the HTTP handlers for playback, history, metadata and admin.
package api

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
