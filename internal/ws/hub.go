// Package ws fans live detection events out to connected dashboard
// clients over WebSocket.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

const (
	writeTimeout = 5 * time.Second

	// queueSize bounds the publish backlog; enough for both camera
	// pipelines triggering in the same classification cycle with room to
	// spare
	queueSize = 256
)

// Hub manages WebSocket connections and broadcasts detection events.
// All writes go through a single broadcaster goroutine, since a
// websocket connection supports only one concurrent writer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

// NewHub creates an empty hub and starts its broadcaster
func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*websocket.Conn]bool),
		queue:   make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a client connection
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] Client registered (total: %d)", total)
}

// Unregister removes a client connection
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] Client unregistered (remaining: %d)", total)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishDetection queues a logged detection event for broadcast. The
// queue hand-off keeps camera loops from ever blocking on a slow client;
// a full queue drops the event.
func (h *Hub) PublishDetection(event *engine.DetectionEvent) {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		*engine.DetectionEvent
	}{Type: "detection", DetectionEvent: event})
	if err != nil {
		log.Printf("[WS] Failed to marshal detection event: %v", err)
		return
	}

	select {
	case h.queue <- payload:
	case <-h.done:
	default:
		log.Printf("[WS] Broadcast queue full, dropping detection %d", event.ID)
	}
}

// run is the broadcaster goroutine, the only writer on any connection
func (h *Hub) run() {
	for {
		select {
		case payload := <-h.queue:
			h.broadcast(payload)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.Unregister(conn)
		}
	}
}

// Close stops the broadcaster and disconnects all clients
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Ensure Hub implements the engine's publisher contract
var _ engine.EventPublisher = (*Hub)(nil)
