package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"drawbridge/internal/relay"
	"drawbridge/pkg/interfaces"
	"drawbridge/pkg/types"
)

// Hub is the session server: it accepts decoded events from connection
// handlers and feeds them through the relay one at a time. The single run
// goroutine is what makes registry mutation effectively single-threaded --
// one connection's event is processed to completion before the next is
// touched, so join and leave never interleave mid-operation.
//
// No drain logic exists on shutdown. Room state is process memory and is
// lost on restart; clients re-join on reconnect.
type Hub struct {
	eventChannel      chan *Event
	disconnectChannel chan interfaces.Connection
	shutdownChannel   chan struct{}

	relay *relay.Relay

	running bool
	mu      sync.RWMutex
}

// Event pairs an inbound envelope with its connection and receipt time. The
// receipt time is stamped at dispatch so diagram-changed timestamps reflect
// when the server saw the event, not when the relay got around to it.
type Event struct {
	Conn     interfaces.Connection
	Envelope *types.Envelope
	Received time.Time
}

// NewHub creates a hub over the given relay.
func NewHub(r *relay.Relay) *Hub {
	return &Hub{
		eventChannel:      make(chan *Event, 1000), // absorbs cursor-move bursts
		disconnectChannel: make(chan interfaces.Connection, 100),
		shutdownChannel:   make(chan struct{}),
		relay:             r,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting session hub...")

	go h.run(ctx)

	return nil
}

// Stop shuts down the hub. Queued events are abandoned; room state does not
// survive anyway.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping session hub...")

	select {
	case <-h.shutdownChannel:
		// already closed
	default:
		close(h.shutdownChannel)
	}

	return nil
}

// Dispatch queues an inbound event for processing. Non-blocking: a full
// channel is reported to the caller rather than stalling the read pump.
func (h *Hub) Dispatch(conn interfaces.Connection, envelope *types.Envelope) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	event := &Event{
		Conn:     conn,
		Envelope: envelope,
		Received: time.Now(),
	}

	select {
	case h.eventChannel <- event:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues cleanup for a closed connection. The relay treats it
// identically to an explicit leave-diagram.
func (h *Hub) Disconnect(conn interfaces.Connection) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.disconnectChannel <- conn:
		return nil
	default:
		return ErrDisconnectChannelFull
	}
}

// run is the main processing loop, the only goroutine that drives the relay.
func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub processing stopped")

	// Sweeps throttle state for connections whose disconnect cleanup never
	// ran; Forget on disconnect covers the normal path.
	pruneTicker := time.NewTicker(5 * time.Minute)
	defer pruneTicker.Stop()

	for {
		select {
		case event := <-h.eventChannel:
			h.relay.HandleEvent(event.Conn, event.Envelope, event.Received)

		case conn := <-h.disconnectChannel:
			h.relay.HandleDisconnect(conn)

		case <-pruneTicker.C:
			h.relay.PruneThrottle()

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}
