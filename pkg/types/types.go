package types

import (
	"encoding/json"
	"time"
)

// Inbound event names, as sent by diagram clients.
const (
	EventJoinDiagram   = "join-diagram"
	EventLeaveDiagram  = "leave-diagram"
	EventDiagramUpdate = "diagram-update"
	EventCursorMove    = "cursor-move"
)

// Outbound event names, as delivered to room members.
const (
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventDiagramChanged = "diagram-changed"
	EventCursorUpdate   = "cursor-update"
	EventError          = "error"
)

// MaxUpdateBytes caps the serialized size of a diagram-update payload.
const MaxUpdateBytes = 65536 // 64KB

// CursorPosition is a participant's pointer location on the canvas.
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Envelope is the inbound wire message. Clients send one JSON envelope per
// event; required fields depend on the event type, see Validate.
type Envelope struct {
	Event     string          `json:"event"`
	DiagramID string          `json:"diagramId"`
	UserID    string          `json:"userId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Position  *CursorPosition `json:"position,omitempty"`
}

// Outbound is the message delivered to other room members. The Timestamp on
// diagram-changed is stamped from the server clock at receipt, never taken
// from the client.
type Outbound struct {
	Event       string          `json:"event"`
	UserID      string          `json:"userId,omitempty"`
	ActiveUsers []string        `json:"activeUsers,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Position    *CursorPosition `json:"position,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// Diagram is the durable document persisted through the REST layer. The
// relay never reads or writes diagram rows; clients save through the API
// independently of real-time broadcast.
type Diagram struct {
	ID        string          `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	ProblemID *string         `json:"problem_id,omitempty" db:"problem_id"`
	Data      json.RawMessage `json:"data" db:"data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
