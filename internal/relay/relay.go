package relay

import (
	"log"
	"time"

	"drawbridge/internal/websocket"
	"drawbridge/pkg/interfaces"
	"drawbridge/pkg/types"
)

// Relay translates inbound events into registry mutations and room
// broadcasts. It holds no state of its own beyond the cursor throttle; the
// registry is the only shared mutable resource.
//
// Delivery is best effort and at most once: a failed write to one recipient
// never affects the others, and the sender gets no acknowledgment. Messages
// from one participant reach the others in send order, but there is no
// cross-sender ordering and no merge of concurrent diagram updates; two
// clients editing at once can observe each other's deltas in different
// relative orders.
type Relay struct {
	registry *websocket.Registry
	throttle *Throttle
}

// NewRelay creates a relay over the given room registry. cursorInterval
// bounds the per-connection cursor-move rate; zero disables coalescing.
func NewRelay(registry *websocket.Registry, cursorInterval time.Duration) *Relay {
	return &Relay{
		registry: registry,
		throttle: NewThrottle(cursorInterval),
	}
}

// HandleEvent processes one inbound event from a connection. received is
// the server receipt time, used to stamp diagram-changed broadcasts so all
// recipients see the same timestamp regardless of delivery latency.
func (r *Relay) HandleEvent(conn interfaces.Connection, envelope *types.Envelope, received time.Time) {
	if err := envelope.Validate(); err != nil {
		// Reject instead of proceeding with missing fields; a join keyed by
		// an empty diagramId would corrupt room bookkeeping.
		r.sendError(conn, err.Error())
		return
	}

	switch envelope.Event {
	case types.EventJoinDiagram:
		r.handleJoin(conn, envelope)
	case types.EventLeaveDiagram:
		r.handleLeave(conn, envelope)
	case types.EventDiagramUpdate:
		r.handleUpdate(conn, envelope, received)
	case types.EventCursorMove:
		r.handleCursor(conn, envelope)
	}
}

// HandleDisconnect performs leave cleanup for a closed connection. It is
// idempotent with explicit leave-diagram: whichever runs first clears the
// membership, and the other finds nothing to do. No duplicate user-left
// broadcast is ever sent for one logical departure.
func (r *Relay) HandleDisconnect(conn interfaces.Connection) {
	userID, diagramID, ok := conn.ClearMembership()
	if !ok {
		return
	}

	members, removed := r.registry.Leave(diagramID, userID, conn.ID())
	if !removed {
		// The user already rejoined on a newer connection; its membership
		// stands and no departure is announced.
		r.throttle.Forget(conn.ID())
		return
	}

	r.broadcast(diagramID, conn.ID(), &types.Outbound{
		Event:       types.EventUserLeft,
		UserID:      userID,
		ActiveUsers: members,
	})
	r.throttle.Forget(conn.ID())

	log.Printf("Participant disconnected: user=%s diagram=%s remaining=%d", userID, diagramID, len(members))
}

// PruneThrottle drops throttle state for connections idle long enough that
// a disconnect cleanup must have been missed. Called periodically by the
// hub's run loop.
func (r *Relay) PruneThrottle() {
	r.throttle.Cleanup()
}

// handleJoin adds the participant to the requested room and announces the
// join to the other members. A join while already in a different room
// leaves the old room first; the double join is not an error.
func (r *Relay) handleJoin(conn interfaces.Connection, envelope *types.Envelope) {
	if prevUser, prevDiagram, ok := conn.Membership(); ok {
		if prevDiagram == envelope.DiagramID && prevUser == envelope.UserID {
			// Re-join of the current room is idempotent.
			r.registry.Join(envelope.DiagramID, envelope.UserID, conn)
			return
		}

		if members, removed := r.registry.Leave(prevDiagram, prevUser, conn.ID()); removed {
			r.broadcast(prevDiagram, conn.ID(), &types.Outbound{
				Event:       types.EventUserLeft,
				UserID:      prevUser,
				ActiveUsers: members,
			})
		}
	}

	members := r.registry.Join(envelope.DiagramID, envelope.UserID, conn)
	conn.SetMembership(envelope.UserID, envelope.DiagramID)

	r.broadcast(envelope.DiagramID, conn.ID(), &types.Outbound{
		Event:       types.EventUserJoined,
		UserID:      envelope.UserID,
		ActiveUsers: members,
	})

	log.Printf("Participant joined: user=%s diagram=%s members=%d", envelope.UserID, envelope.DiagramID, len(members))
}

// handleLeave removes the participant from the room and announces the
// departure. Leaving a room the participant was never in is a no-op.
func (r *Relay) handleLeave(conn interfaces.Connection, envelope *types.Envelope) {
	userID, diagramID, ok := conn.ClearMembership()
	if !ok || diagramID != envelope.DiagramID {
		// Not in that room; nothing to clean up. If the membership was for
		// a different room, restore it.
		if ok {
			conn.SetMembership(userID, diagramID)
		}
		return
	}

	members, removed := r.registry.Leave(diagramID, userID, conn.ID())
	if !removed {
		return
	}

	r.broadcast(diagramID, conn.ID(), &types.Outbound{
		Event:       types.EventUserLeft,
		UserID:      userID,
		ActiveUsers: members,
	})

	log.Printf("Participant left: user=%s diagram=%s remaining=%d", userID, diagramID, len(members))
}

// handleUpdate relays a diagram delta to the other room members. The delta
// is never persisted here; REST clients save through the API on their own.
func (r *Relay) handleUpdate(conn interfaces.Connection, envelope *types.Envelope, received time.Time) {
	timestamp := received.UTC()
	r.broadcast(envelope.DiagramID, conn.ID(), &types.Outbound{
		Event:     types.EventDiagramChanged,
		UserID:    envelope.UserID,
		Data:      envelope.Data,
		Timestamp: &timestamp,
	})
}

// handleCursor relays a cursor position to the other room members, subject
// to per-connection coalescing. Throttled events are dropped silently; a
// stale cursor position is worthless and not worth an error.
func (r *Relay) handleCursor(conn interfaces.Connection, envelope *types.Envelope) {
	if !r.throttle.Allow(conn.ID()) {
		return
	}

	r.broadcast(envelope.DiagramID, conn.ID(), &types.Outbound{
		Event:    types.EventCursorUpdate,
		UserID:   envelope.UserID,
		Position: envelope.Position,
	})
}

// broadcast delivers a message to every room member except the originating
// connection. A room with no other members is a no-op. Per-recipient write
// failures are logged and isolated so one dead socket cannot block the rest.
func (r *Relay) broadcast(diagramID, excludeConnID string, msg *types.Outbound) {
	for _, conn := range r.registry.Connections(diagramID) {
		if conn.ID() == excludeConnID {
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Failed to deliver %s to conn %s: %v", msg.Event, conn.ID(), err)
		}
	}
}

// sendError reports a validation failure back to the sender.
func (r *Relay) sendError(conn interfaces.Connection, message string) {
	if err := conn.WriteJSON(&types.Outbound{
		Event:   types.EventError,
		Message: message,
	}); err != nil {
		log.Printf("Failed to send error event to conn %s: %v", conn.ID(), err)
	}
}
