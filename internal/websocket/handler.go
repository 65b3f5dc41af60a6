package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"drawbridge/pkg/interfaces"
	"drawbridge/pkg/types"
)

// Dispatcher receives decoded events and disconnect notifications. Declared
// here to avoid coupling the transport layer to the hub implementation.
type Dispatcher interface {
	Dispatch(conn interfaces.Connection, envelope *types.Envelope) error
	Disconnect(conn interfaces.Connection) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development. Production deployments should
		// implement stricter origin checking.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests to WebSocket connections and pumps inbound
// events into the dispatcher.
type Handler struct {
	dispatcher   Dispatcher
	pingInterval time.Duration
	readTimeout  time.Duration
	bufferSize   int
}

// NewHandler creates a WebSocket handler.
func NewHandler(dispatcher Dispatcher, pingInterval, readTimeout time.Duration, bufferSize int) *Handler {
	return &Handler{
		dispatcher:   dispatcher,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
		bufferSize:   bufferSize,
	}
}

// HandleWebSocket handles WebSocket connection requests.
//
// The relay performs no token validation: the userId a client claims on its
// events is trusted as-is, matching the REST layer's decision to keep auth
// out of the real-time path. The warning below exists so deployments see
// the gap in their logs.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.bufferSize)
	log.Printf("WARNING: accepting connection without identity verification: conn=%s remote=%s", wsConn.ID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection owns the connection lifecycle: heartbeat monitoring, the
// read pump, and cleanup. A transport disconnect is dispatched exactly like
// an explicit leave-diagram.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if err := h.dispatcher.Disconnect(conn); err != nil {
			log.Printf("Failed to dispatch disconnect for %s: %v", conn.ID(), err)
		}
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			// Malformed frames get a client-visible error; the connection
			// stays open.
			if err := conn.WriteJSON(&types.Outbound{
				Event:   types.EventError,
				Message: "invalid JSON payload",
			}); err != nil {
				log.Printf("Failed to send decode error to %s: %v", conn.ID(), err)
			}
			continue
		}

		if err := h.dispatcher.Dispatch(conn, &envelope); err != nil {
			// Backpressure: the event is dropped, the connection survives.
			log.Printf("Dropped %s event from %s: %v", envelope.Event, conn.ID(), err)
		}
	}
}
