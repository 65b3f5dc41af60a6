package interfaces

import (
	"context"
	"drawbridge/pkg/types"
)

// DiagramStore handles persistence of diagram documents. The REST layer is
// its only caller; the relay broadcasts deltas without touching storage.
type DiagramStore interface {
	// CreateDiagram inserts a new diagram document.
	CreateDiagram(ctx context.Context, diagram *types.Diagram) error

	// GetDiagram retrieves a diagram by ID, or ErrDiagramNotFound.
	GetDiagram(ctx context.Context, diagramID string) (*types.Diagram, error)

	// UpdateDiagram overwrites an existing diagram's title and data.
	// Last write wins; there is no merge of concurrent saves.
	UpdateDiagram(ctx context.Context, diagram *types.Diagram) error

	// DeleteDiagram removes a diagram by ID.
	DeleteDiagram(ctx context.Context, diagramID string) error

	// ListDiagramsByOwner returns all diagrams owned by a user, most
	// recently updated first.
	ListDiagramsByOwner(ctx context.Context, ownerID string) ([]*types.Diagram, error)

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close closes the store and waits for pending writes.
	Close() error
}
