package types

import (
	"encoding/json"
	"regexp"
)

// Compiled once at package initialization; these run on every inbound event.
// Diagram ids are opaque client-supplied tokens; only whitespace, control
// characters, and unbounded length are rejected so they stay usable as
// registry keys and log fields.
var (
	userIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
	diagramIDRegex = regexp.MustCompile(`^[\x21-\x7e]{1,256}$`)
)

// IsValidUserID reports whether id is an acceptable participant identifier.
func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// IsValidDiagramID reports whether id is an acceptable diagram/room key.
// Client-supplied ids key the room registry, so the format is enforced here
// rather than trusting the wire.
func IsValidDiagramID(id string) bool {
	return diagramIDRegex.MatchString(id)
}

// IsValidTitle reports whether a diagram title is acceptable.
func IsValidTitle(title string) bool {
	return len(title) >= 1 && len(title) <= 200
}

// Validate checks that the envelope carries every field its event requires.
// A failed validation is reported back to the sender as an error event; the
// event is never processed with missing fields.
func (e *Envelope) Validate() error {
	switch e.Event {
	case EventJoinDiagram, EventLeaveDiagram, EventDiagramUpdate, EventCursorMove:
	default:
		return ErrUnknownEvent
	}

	if e.DiagramID == "" {
		return ErrMissingDiagramID
	}
	if !IsValidDiagramID(e.DiagramID) {
		return ErrInvalidDiagramID
	}
	if e.UserID == "" {
		return ErrMissingUserID
	}
	if !IsValidUserID(e.UserID) {
		return ErrInvalidUserID
	}

	switch e.Event {
	case EventCursorMove:
		if e.Position == nil {
			return ErrMissingPosition
		}
	case EventDiagramUpdate:
		if len(e.Data) > MaxUpdateBytes {
			return ErrUpdateTooLarge
		}
	}

	return nil
}

// Validate ensures the diagram document meets all requirements before it is
// persisted.
func (d *Diagram) Validate() error {
	if !IsValidTitle(d.Title) {
		return ErrInvalidTitle
	}
	if !IsValidUserID(d.OwnerID) {
		return ErrInvalidOwnerID
	}
	if len(d.Data) > 0 && !json.Valid(d.Data) {
		return ErrInvalidData
	}
	return nil
}
