package interfaces

import "goalseek/pkg/types"

// Connection represents one accepted client socket.
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details lets
// the broker and router hold connections without importing the WebSocket layer
type Connection interface {
	// WriteJSON sends a JSON frame to the client (thread-safe).
	// Implementations must serialize writes through a single writer.
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources
	Close() error

	// CloseWithCode sends a close frame with the given code before closing
	CloseWithCode(code int, reason string) error

	// Identity returns the authenticated identity, valid once IsAuthenticated
	Identity() types.Identity

	// IsAuthenticated reports whether credentials have been attached
	IsAuthenticated() bool
}
