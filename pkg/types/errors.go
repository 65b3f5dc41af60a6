package types

import "errors"

var (
	ErrUnknownEvent      = errors.New("unknown event")
	ErrMissingDiagramID  = errors.New("diagramId is required")
	ErrMissingUserID     = errors.New("userId is required")
	ErrMissingPosition   = errors.New("position is required for cursor-move")
	ErrInvalidUserID     = errors.New("userId must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidDiagramID  = errors.New("diagramId must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidTitle      = errors.New("title must be 1-200 characters")
	ErrInvalidOwnerID    = errors.New("owner_id must be a valid user ID")
	ErrInvalidData       = errors.New("data must be valid JSON")
	ErrUpdateTooLarge    = errors.New("diagram data exceeds 64KB limit")
)
