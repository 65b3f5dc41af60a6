package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"drawbridge/internal/diagram"
	"drawbridge/pkg/interfaces"
	"drawbridge/pkg/types"
)

// Registry is the narrow view of the room registry the API needs: room
// snapshots for listings and counters for health. Declared locally to avoid
// coupling the HTTP layer to the websocket implementation.
type Registry interface {
	MembersOf(diagramID string) []string
	Rooms() map[string][]string
	Stats() map[string]int
}

// Server is the REST surface: diagram document CRUD plus room and health
// introspection. No relay logic lives here; saving a diagram and
// broadcasting its deltas are independent paths.
type Server struct {
	diagrams *diagram.Manager
	store    interfaces.DiagramStore
	registry Registry
	router   *http.ServeMux
}

// NewServer creates the API server and sets up routing.
func NewServer(diagrams *diagram.Manager, store interfaces.DiagramStore, registry Registry) *Server {
	s := &Server{
		diagrams: diagrams,
		store:    store,
		registry: registry,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/diagrams", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleDiagrams))))
	s.router.Handle("/api/diagrams/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleDiagramByID))))
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRooms))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleDiagrams handles the collection endpoints (POST and GET /api/diagrams).
func (s *Server) handleDiagrams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createDiagram(w, r)
	case http.MethodGet:
		s.listDiagrams(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleDiagramByID handles GET/PUT/DELETE /api/diagrams/{id}.
func (s *Server) handleDiagramByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/diagrams/")
	if path == "" {
		s.sendError(w, "Diagram ID required", http.StatusBadRequest)
		return
	}

	diagramID := strings.Split(path, "/")[0]
	if diagramID == "" {
		s.sendError(w, "Invalid diagram ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getDiagram(w, r, diagramID)
	case http.MethodPut:
		s.updateDiagram(w, r, diagramID)
	case http.MethodDelete:
		s.deleteDiagram(w, r, diagramID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request/Response types for JSON serialization
type CreateDiagramRequest struct {
	Title     string          `json:"title"`
	OwnerID   string          `json:"owner_id"`
	ProblemID *string         `json:"problem_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type UpdateDiagramRequest struct {
	Title string          `json:"title,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type DiagramResponse struct {
	Diagram     *types.Diagram `json:"diagram"`
	ActiveUsers []string       `json:"active_users"`
}

type ListDiagramsResponse struct {
	Diagrams []DiagramWithPresence `json:"diagrams"`
}

type DiagramWithPresence struct {
	*types.Diagram
	ActiveUsers []string `json:"active_users"`
}

type RoomInfo struct {
	DiagramID   string   `json:"diagram_id"`
	ActiveUsers []string `json:"active_users"`
}

type ListRoomsResponse struct {
	Rooms []RoomInfo `json:"rooms"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// createDiagram handles POST /api/diagrams.
func (s *Server) createDiagram(w http.ResponseWriter, r *http.Request) {
	var req CreateDiagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		s.sendError(w, "Title is required", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		s.sendError(w, "Owner ID is required", http.StatusBadRequest)
		return
	}

	d, err := s.diagrams.Create(r.Context(), req.Title, req.OwnerID, req.ProblemID, req.Data)
	if err != nil {
		switch err {
		case types.ErrInvalidTitle, types.ErrInvalidOwnerID, types.ErrInvalidData:
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			s.sendError(w, "Failed to create diagram", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(DiagramResponse{Diagram: d, ActiveUsers: []string{}})
}

// getDiagram handles GET /api/diagrams/{id}, annotated with who is
// currently in the diagram's room.
func (s *Server) getDiagram(w http.ResponseWriter, r *http.Request, diagramID string) {
	d, err := s.diagrams.Get(r.Context(), diagramID)
	if err != nil {
		if diagram.IsNotFound(err) {
			s.sendError(w, "Diagram not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get diagram", http.StatusInternalServerError)
		}
		return
	}

	members := s.registry.MembersOf(diagramID)
	if members == nil {
		members = []string{}
	}

	json.NewEncoder(w).Encode(DiagramResponse{Diagram: d, ActiveUsers: members})
}

// updateDiagram handles PUT /api/diagrams/{id}. The save is a full
// overwrite; the last concurrent writer wins.
func (s *Server) updateDiagram(w http.ResponseWriter, r *http.Request, diagramID string) {
	var req UpdateDiagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Title == "" && req.Data == nil {
		s.sendError(w, "Nothing to update", http.StatusBadRequest)
		return
	}

	d, err := s.diagrams.Update(r.Context(), diagramID, req.Title, req.Data)
	if err != nil {
		switch {
		case diagram.IsNotFound(err):
			s.sendError(w, "Diagram not found", http.StatusNotFound)
		case err == types.ErrInvalidTitle || err == types.ErrInvalidData:
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			s.sendError(w, "Failed to update diagram", http.StatusInternalServerError)
		}
		return
	}

	members := s.registry.MembersOf(diagramID)
	if members == nil {
		members = []string{}
	}

	json.NewEncoder(w).Encode(DiagramResponse{Diagram: d, ActiveUsers: members})
}

// deleteDiagram handles DELETE /api/diagrams/{id}. Deleting a diagram does
// not evict its room; participants keep relaying until they leave.
func (s *Server) deleteDiagram(w http.ResponseWriter, r *http.Request, diagramID string) {
	err := s.diagrams.Delete(r.Context(), diagramID)
	if err != nil {
		if diagram.IsNotFound(err) {
			s.sendError(w, "Diagram not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to delete diagram", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Diagram deleted successfully"})
}

// listDiagrams handles GET /api/diagrams?owner_id=, annotated with room
// presence.
func (s *Server) listDiagrams(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		s.sendError(w, "owner_id query parameter is required", http.StatusBadRequest)
		return
	}

	diagrams, err := s.diagrams.ListByOwner(r.Context(), ownerID)
	if err != nil {
		if err == types.ErrInvalidOwnerID {
			s.sendError(w, err.Error(), http.StatusBadRequest)
		} else {
			s.sendError(w, "Failed to list diagrams", http.StatusInternalServerError)
		}
		return
	}

	withPresence := make([]DiagramWithPresence, len(diagrams))
	for i, d := range diagrams {
		members := s.registry.MembersOf(d.ID)
		if members == nil {
			members = []string{}
		}
		withPresence[i] = DiagramWithPresence{
			Diagram:     d,
			ActiveUsers: members,
		}
	}

	json.NewEncoder(w).Encode(ListDiagramsResponse{Diagrams: withPresence})
}

// handleRooms handles GET /api/rooms: a snapshot of active rooms.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := s.registry.Rooms()
	rooms := make([]RoomInfo, 0, len(snapshot))
	for diagramID, members := range snapshot {
		rooms = append(rooms, RoomInfo{DiagramID: diagramID, ActiveUsers: members})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].DiagramID < rooms[j].DiagramID })

	json.NewEncoder(w).Encode(ListRoomsResponse{Rooms: rooms})
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// sendError writes a consistent JSON error response.
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware enables web client access. Allows all origins in
// development; would be restricted in production.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets the content type for all API responses.
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
