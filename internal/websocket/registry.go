package websocket

import (
	"sort"
	"sync"

	"drawbridge/pkg/interfaces"
)

// Registry tracks which participants are currently in which diagram room.
// Rooms are created lazily on first join and removed when their last member
// leaves; a room with zero members never persists.
//
// All operations are total: joining an existing membership replaces the
// connection, leaving an unknown room is a no-op, and looking up an unknown
// room returns an empty member set. The registry is an owned data structure
// handed into the server at composition time, not a package singleton.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]interfaces.Connection // diagramID -> userID -> conn
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]interfaces.Connection),
	}
}

// Join adds a participant to a room, creating the room if absent, and
// returns the updated member set. Joining a room the participant is already
// in is idempotent apart from replacing the stored connection, which covers
// a user reconnecting under the same identity.
func (r *Registry) Join(diagramID, userID string, conn interfaces.Connection) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[diagramID]
	if !exists {
		room = make(map[string]interfaces.Connection)
		r.rooms[diagramID] = room
	}
	room[userID] = conn

	return memberList(room)
}

// Leave removes a participant from a room and returns the updated member
// set plus whether a removal actually happened. The room itself is removed
// once the set becomes empty. Leaving a room the participant was never in
// succeeds trivially.
//
// Removal is guarded by connection identity: if the stored connection is
// not the one identified by connID, the user has already re-registered on
// a newer connection and the membership is left untouched. Without the
// guard, a stale transport's disconnect cleanup would evict the
// replacement connection from its room.
func (r *Registry) Leave(diagramID, userID, connID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[diagramID]
	if !exists {
		return nil, false
	}

	registered, exists := room[userID]
	if !exists {
		return memberList(room), false
	}
	if registered.ID() != connID {
		return memberList(room), false
	}

	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, diagramID)
		return nil, true
	}

	return memberList(room), true
}

// MembersOf returns the member set of a room. Unknown rooms yield an empty
// set, not an error.
func (r *Registry) MembersOf(diagramID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[diagramID]
	if !exists {
		return nil
	}
	return memberList(room)
}

// Connections returns the connections of every member of a room, for
// broadcast delivery.
func (r *Registry) Connections(diagramID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[diagramID]
	if !exists {
		return nil
	}

	conns := make([]interfaces.Connection, 0, len(room))
	for _, conn := range room {
		conns = append(conns, conn)
	}
	return conns
}

// Rooms returns a snapshot of active rooms and their member sets.
func (r *Registry) Rooms() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string][]string, len(r.rooms))
	for diagramID, room := range r.rooms {
		snapshot[diagramID] = memberList(room)
	}
	return snapshot
}

// Stats returns registry counters for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := 0
	for _, room := range r.rooms {
		participants += len(room)
	}

	return map[string]int{
		"active_rooms":        len(r.rooms),
		"active_participants": participants,
	}
}

// memberList returns the sorted user IDs of a room. Sorted so activeUsers
// lists are deterministic for every recipient.
func memberList(room map[string]interfaces.Connection) []string {
	members := make([]string, 0, len(room))
	for userID := range room {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members
}
