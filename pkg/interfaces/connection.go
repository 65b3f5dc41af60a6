package interfaces

// Connection represents one client's real-time channel. The relay and hub
// depend on this interface rather than the websocket implementation so they
// can be exercised with in-memory connections in tests.
type Connection interface {
	// ID returns the transport-level connection identifier. It is distinct
	// from the claimed user identity: the same user may reconnect and get a
	// new connection ID.
	ID() string

	// WriteJSON sends a JSON message to the client. Implementations must be
	// safe for concurrent use; the websocket implementation serializes all
	// writes through a single goroutine.
	WriteJSON(v interface{}) error

	// Close closes the channel and releases resources. Safe to call more
	// than once.
	Close() error

	// SetMembership records the room this connection has joined. A
	// connection is a member of at most one room at a time.
	SetMembership(userID, diagramID string)

	// Membership returns the current room membership, if any.
	Membership() (userID, diagramID string, ok bool)

	// ClearMembership removes the room membership and returns what it was.
	// Calling it on a connection with no membership returns ok=false, which
	// is what makes leave/disconnect cleanup idempotent.
	ClearMembership() (userID, diagramID string, ok bool)
}
