package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket connection with a single-writer goroutine.
// All outbound writes go through writeCh so concurrent broadcasts never race
// on the underlying socket.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// Room membership, set on join-diagram and cleared on leave or
	// disconnect. A connection belongs to at most one room.
	mu        sync.RWMutex
	userID    string
	diagramID string
	inRoom    bool
}

// NewConnection creates a connection wrapper and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer for the underlying socket.
func (c *Connection) writeLoop() {
	defer func() {
		for len(c.writeCh) > 0 {
			<-c.writeCh // drain remaining messages
		}
		close(c.writeCh)
	}()

	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the transport-level connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// WriteJSON queues a JSON message for delivery to the client.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts down the writer goroutine and closes the socket. Safe to call
// multiple times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
		// writeCh is closed by the writeLoop goroutine
	})
	return err
}

// SetMembership records the room this connection joined.
func (c *Connection) SetMembership(userID, diagramID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userID = userID
	c.diagramID = diagramID
	c.inRoom = true
}

// Membership returns the current room membership, if any.
func (c *Connection) Membership() (string, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.diagramID, c.inRoom
}

// ClearMembership removes the membership and reports what it was. Returns
// ok=false if the connection was not in a room, so a leave followed by a
// disconnect cleans up exactly once.
func (c *Connection) ClearMembership() (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inRoom {
		return "", "", false
	}

	userID, diagramID := c.userID, c.diagramID
	c.userID = ""
	c.diagramID = ""
	c.inRoom = false
	return userID, diagramID, true
}
