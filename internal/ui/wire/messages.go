// Package wire defines the WebSocket protocol that pushes toasts and cache
// invalidations to connected browsers.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/erpui/internal/notify"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"` // "hello", "toast", "invalidate", "pong", "error"
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// HelloData is sent once after the connection is accepted.
type HelloData struct {
	ConnectionID string `json:"connection_id"`
}

// InvalidateData lists the query keys that were refetched.
type InvalidateData struct {
	Keys []string `json:"keys"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FromEvent converts a bus event into its push message.
func FromEvent(evt notify.Event) (ServerMessage, bool) {
	switch evt.Type {
	case notify.EventToast:
		if evt.Toast == nil {
			return ServerMessage{}, false
		}
		return ServerMessage{Type: string(notify.EventToast), Data: *evt.Toast}, true
	case notify.EventInvalidate:
		return ServerMessage{Type: string(notify.EventInvalidate), Data: InvalidateData{Keys: evt.Keys}}, true
	}
	return ServerMessage{}, false
}
