package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"drawbridge/pkg/interfaces"
	"drawbridge/pkg/types"
)

// Manager owns diagram document lifecycle: server-generated IDs, validation,
// persistence through the store, and a read cache of recently loaded
// documents. Saves are plain overwrites -- the last writer wins, which is
// the persistence-side counterpart of the relay broadcasting raw deltas
// with no merge.
type Manager struct {
	store interfaces.DiagramStore
	cache map[string]*types.Diagram // diagramID -> Diagram
	mu    sync.RWMutex
}

// NewManager creates a diagram manager over the given store.
func NewManager(store interfaces.DiagramStore) *Manager {
	return &Manager{
		store: store,
		cache: make(map[string]*types.Diagram),
	}
}

// Create persists a new diagram with a server-generated ID. Client-supplied
// IDs are ignored so the keyspace stays server-controlled.
func (m *Manager) Create(ctx context.Context, title, ownerID string, problemID *string, data json.RawMessage) (*types.Diagram, error) {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	now := time.Now()
	diagram := &types.Diagram{
		ID:        uuid.New().String(),
		Title:     title,
		OwnerID:   ownerID,
		ProblemID: problemID,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := diagram.Validate(); err != nil {
		return nil, err
	}

	if err := m.store.CreateDiagram(ctx, diagram); err != nil {
		return nil, fmt.Errorf("failed to create diagram: %w", err)
	}

	m.mu.Lock()
	m.cache[diagram.ID] = diagram
	m.mu.Unlock()

	log.Printf("Created diagram: id=%s owner=%s title=%q", diagram.ID, diagram.OwnerID, diagram.Title)
	return diagram, nil
}

// Get retrieves a diagram, cache first.
func (m *Manager) Get(ctx context.Context, diagramID string) (*types.Diagram, error) {
	m.mu.RLock()
	if diagram, exists := m.cache[diagramID]; exists {
		m.mu.RUnlock()
		return diagram, nil
	}
	m.mu.RUnlock()

	diagram, err := m.store.GetDiagram(ctx, diagramID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[diagramID] = diagram
	m.mu.Unlock()

	return diagram, nil
}

// Update overwrites a diagram's title and data. No merge, no version check:
// concurrent saves resolve to whichever write lands last.
func (m *Manager) Update(ctx context.Context, diagramID, title string, data json.RawMessage) (*types.Diagram, error) {
	existing, err := m.Get(ctx, diagramID)
	if err != nil {
		return nil, err
	}

	updated := &types.Diagram{
		ID:        existing.ID,
		Title:     existing.Title,
		OwnerID:   existing.OwnerID,
		ProblemID: existing.ProblemID,
		Data:      existing.Data,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: time.Now(),
	}
	if title != "" {
		updated.Title = title
	}
	if data != nil {
		updated.Data = data
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := m.store.UpdateDiagram(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update diagram: %w", err)
	}

	m.mu.Lock()
	m.cache[diagramID] = updated
	m.mu.Unlock()

	log.Printf("Updated diagram: id=%s owner=%s", updated.ID, updated.OwnerID)
	return updated, nil
}

// Delete removes a diagram from the store and the cache.
func (m *Manager) Delete(ctx context.Context, diagramID string) error {
	if _, err := m.Get(ctx, diagramID); err != nil {
		return err
	}

	if err := m.store.DeleteDiagram(ctx, diagramID); err != nil {
		return fmt.Errorf("failed to delete diagram: %w", err)
	}

	m.mu.Lock()
	delete(m.cache, diagramID)
	m.mu.Unlock()

	log.Printf("Deleted diagram: id=%s", diagramID)
	return nil
}

// ListByOwner returns a user's diagrams, most recently updated first. Always
// reads through to the store; the cache only serves point lookups.
func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]*types.Diagram, error) {
	if !types.IsValidUserID(ownerID) {
		return nil, types.ErrInvalidOwnerID
	}

	diagrams, err := m.store.ListDiagramsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagrams: %w", err)
	}

	return diagrams, nil
}

// IsNotFound reports whether an error means the diagram does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, interfaces.ErrDiagramNotFound)
}

// Stats returns manager statistics.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"cached_diagrams": len(m.cache),
	}
}
