package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrDiagramNotFound = errors.New("diagram not found")
)
