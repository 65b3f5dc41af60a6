package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"drawbridge/internal/diagram"
	"drawbridge/pkg/interfaces"
	"drawbridge/pkg/types"
)

// fakeStore is an in-memory DiagramStore for API tests.
type fakeStore struct {
	mu        sync.Mutex
	diagrams  map[string]*types.Diagram
	healthErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{diagrams: make(map[string]*types.Diagram)}
}

func (s *fakeStore) CreateDiagram(ctx context.Context, d *types.Diagram) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagrams[d.ID] = d
	return nil
}

func (s *fakeStore) GetDiagram(ctx context.Context, id string) (*types.Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, exists := s.diagrams[id]
	if !exists {
		return nil, interfaces.ErrDiagramNotFound
	}
	return d, nil
}

func (s *fakeStore) UpdateDiagram(ctx context.Context, d *types.Diagram) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.diagrams[d.ID]; !exists {
		return interfaces.ErrDiagramNotFound
	}
	s.diagrams[d.ID] = d
	return nil
}

func (s *fakeStore) DeleteDiagram(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.diagrams[id]; !exists {
		return interfaces.ErrDiagramNotFound
	}
	delete(s.diagrams, id)
	return nil
}

func (s *fakeStore) ListDiagramsByOwner(ctx context.Context, ownerID string) ([]*types.Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Diagram
	for _, d := range s.diagrams {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) HealthCheck(ctx context.Context) error { return s.healthErr }
func (s *fakeStore) Close() error                          { return nil }

// fakeRegistry serves canned presence data.
type fakeRegistry struct {
	rooms map[string][]string
}

func (r *fakeRegistry) MembersOf(diagramID string) []string { return r.rooms[diagramID] }
func (r *fakeRegistry) Rooms() map[string][]string          { return r.rooms }
func (r *fakeRegistry) Stats() map[string]int {
	participants := 0
	for _, members := range r.rooms {
		participants += len(members)
	}
	return map[string]int{"active_rooms": len(r.rooms), "active_participants": participants}
}

func setupTestServer() (*Server, *fakeStore, *fakeRegistry) {
	store := newFakeStore()
	registry := &fakeRegistry{rooms: make(map[string][]string)}
	server := NewServer(diagram.NewManager(store), store, registry)
	return server, store, registry
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

func createViaAPI(t *testing.T, server *Server, title, ownerID string) *types.Diagram {
	t.Helper()

	recorder := doJSON(t, server, http.MethodPost, "/api/diagrams", CreateDiagramRequest{
		Title:   title,
		OwnerID: ownerID,
		Data:    json.RawMessage(`{"nodes":[]}`),
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Create failed with status %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp DiagramResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode create response: %v", err)
	}
	return resp.Diagram
}

func TestServer_CreateDiagram(t *testing.T) {
	server, _, _ := setupTestServer()

	created := createViaAPI(t, server, "Chat System", "alice")

	if created.ID == "" {
		t.Error("Expected server-assigned ID")
	}
	if created.Title != "Chat System" || created.OwnerID != "alice" {
		t.Errorf("Fields not preserved: %+v", created)
	}
}

func TestServer_CreateDiagramValidation(t *testing.T) {
	server, _, _ := setupTestServer()

	tests := []struct {
		name string
		req  CreateDiagramRequest
	}{
		{"missing title", CreateDiagramRequest{OwnerID: "alice"}},
		{"missing owner", CreateDiagramRequest{Title: "Diagram"}},
		{"invalid owner id", CreateDiagramRequest{Title: "Diagram", OwnerID: "has spaces!"}},
		{"invalid data", CreateDiagramRequest{Title: "Diagram", OwnerID: "alice", Data: json.RawMessage(`{broken`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := doJSON(t, server, http.MethodPost, "/api/diagrams", tt.req)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", recorder.Code)
			}

			var errResp ErrorResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("Error body is not JSON: %v", err)
			}
			if errResp.Message == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestServer_CreateDiagramMalformedBody(t *testing.T) {
	server, _, _ := setupTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/diagrams", bytes.NewReader([]byte("{broken")))
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", recorder.Code)
	}
}

func TestServer_GetDiagramWithPresence(t *testing.T) {
	server, _, registry := setupTestServer()

	created := createViaAPI(t, server, "Feed Design", "alice")
	registry.rooms[created.ID] = []string{"alice", "bob"}

	recorder := doJSON(t, server, http.MethodGet, "/api/diagrams/"+created.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var resp DiagramResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Diagram.ID != created.ID {
		t.Errorf("Wrong diagram returned: %s", resp.Diagram.ID)
	}
	if len(resp.ActiveUsers) != 2 {
		t.Errorf("Expected presence [alice bob], got %v", resp.ActiveUsers)
	}
}

func TestServer_GetDiagramEmptyPresenceIsArray(t *testing.T) {
	server, _, _ := setupTestServer()

	created := createViaAPI(t, server, "Lonely", "alice")

	recorder := doJSON(t, server, http.MethodGet, "/api/diagrams/"+created.ID, nil)
	if !bytes.Contains(recorder.Body.Bytes(), []byte(`"active_users":[]`)) {
		t.Errorf("Empty presence must serialize as [], got %s", recorder.Body.String())
	}
}

func TestServer_GetDiagramNotFound(t *testing.T) {
	server, _, _ := setupTestServer()

	recorder := doJSON(t, server, http.MethodGet, "/api/diagrams/missing", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", recorder.Code)
	}
}

func TestServer_UpdateDiagram(t *testing.T) {
	server, _, _ := setupTestServer()

	created := createViaAPI(t, server, "Before", "alice")

	recorder := doJSON(t, server, http.MethodPut, "/api/diagrams/"+created.ID, UpdateDiagramRequest{
		Title: "After",
		Data:  json.RawMessage(`{"nodes":[{"id":"queue"}]}`),
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp DiagramResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Diagram.Title != "After" {
		t.Errorf("Title not updated: %q", resp.Diagram.Title)
	}
	if string(resp.Diagram.Data) != `{"nodes":[{"id":"queue"}]}` {
		t.Errorf("Data not updated: %s", resp.Diagram.Data)
	}
}

func TestServer_UpdateDiagramEmptyBody(t *testing.T) {
	server, _, _ := setupTestServer()

	created := createViaAPI(t, server, "Unchanged", "alice")

	recorder := doJSON(t, server, http.MethodPut, "/api/diagrams/"+created.ID, UpdateDiagramRequest{})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty update, got %d", recorder.Code)
	}
}

func TestServer_UpdateDiagramNotFound(t *testing.T) {
	server, _, _ := setupTestServer()

	recorder := doJSON(t, server, http.MethodPut, "/api/diagrams/missing", UpdateDiagramRequest{Title: "X"})
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", recorder.Code)
	}
}

func TestServer_DeleteDiagram(t *testing.T) {
	server, _, _ := setupTestServer()

	created := createViaAPI(t, server, "Doomed", "alice")

	recorder := doJSON(t, server, http.MethodDelete, "/api/diagrams/"+created.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodGet, "/api/diagrams/"+created.ID, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", recorder.Code)
	}
}

func TestServer_ListDiagrams(t *testing.T) {
	server, _, registry := setupTestServer()

	d1 := createViaAPI(t, server, "One", "alice")
	createViaAPI(t, server, "Two", "alice")
	createViaAPI(t, server, "Other", "bob")
	registry.rooms[d1.ID] = []string{"alice"}

	recorder := doJSON(t, server, http.MethodGet, "/api/diagrams?owner_id=alice", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var resp ListDiagramsResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Diagrams) != 2 {
		t.Fatalf("Expected 2 diagrams, got %d", len(resp.Diagrams))
	}
	for _, d := range resp.Diagrams {
		if d.ID == d1.ID && len(d.ActiveUsers) != 1 {
			t.Errorf("Expected presence on %s, got %v", d.ID, d.ActiveUsers)
		}
	}
}

func TestServer_ListDiagramsRequiresOwner(t *testing.T) {
	server, _, _ := setupTestServer()

	recorder := doJSON(t, server, http.MethodGet, "/api/diagrams", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without owner_id, got %d", recorder.Code)
	}
}

func TestServer_ListRooms(t *testing.T) {
	server, _, registry := setupTestServer()

	registry.rooms["d2"] = []string{"carol"}
	registry.rooms["d1"] = []string{"alice", "bob"}

	recorder := doJSON(t, server, http.MethodGet, "/api/rooms", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var resp ListRoomsResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d", len(resp.Rooms))
	}
	// Sorted by diagram ID for a stable listing.
	if resp.Rooms[0].DiagramID != "d1" || resp.Rooms[1].DiagramID != "d2" {
		t.Errorf("Rooms not sorted: %+v", resp.Rooms)
	}
}

func TestServer_HealthCheck(t *testing.T) {
	server, store, registry := setupTestServer()
	registry.rooms["d1"] = []string{"alice"}

	recorder := doJSON(t, server, http.MethodGet, "/health", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Database != "healthy" {
		t.Errorf("Expected healthy status, got %+v", resp)
	}
	if resp.Connections["active_rooms"] != 1 {
		t.Errorf("Expected 1 active room, got %d", resp.Connections["active_rooms"])
	}

	// Store failure degrades the report and the status code.
	store.healthErr = errors.New("disk gone")
	recorder = doJSON(t, server, http.MethodGet, "/health", nil)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when store is unhealthy, got %d", recorder.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _, _ := setupTestServer()

	recorder := doJSON(t, server, http.MethodPatch, "/api/diagrams", nil)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", recorder.Code)
	}

	created := createViaAPI(t, server, "Diagram", "alice")
	recorder = doJSON(t, server, http.MethodPost, "/api/diagrams/"+created.ID, nil)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 on item endpoint, got %d", recorder.Code)
	}
}

func TestServer_CORSHeaders(t *testing.T) {
	server, _, _ := setupTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/diagrams", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("Expected allowed methods header")
	}
}

func TestServer_JSONContentType(t *testing.T) {
	server, _, _ := setupTestServer()

	recorder := doJSON(t, server, http.MethodGet, "/health", nil)
	if got := recorder.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected application/json, got %q", got)
	}
}
