package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/accounts/internal/core/domain"
	"github.com/lorrc/accounts/internal/core/ports"
)

// Hub maintains the set of active Clients and routes events to the
// connections of the session they belong to.
type Hub struct {
	// sessions maps API session IDs to their active connections.
	// A session can hold several connections (multiple tabs).
	sessions map[string]map[*Client]bool

	broadcast  chan domain.Event
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for delivery to event.SessionID.
// Events are dropped when the queue is full.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"session_id", event.SessionID,
		)
	}
	return nil
}

// Run starts the hub's event loop until ctx is done. On return every
// remaining client is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// register hands a client to the running hub. It reports false once the hub
// has stopped.
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[*Client]bool)
	}
	h.sessions[client.SessionID][client] = true

	h.logger.Info("client registered",
		"session_id", client.SessionID,
		"total_connections", len(h.sessions[client.SessionID]),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.sessions[client.SessionID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.sessions, client.SessionID)
			}
		}
	}

	client.CloseSend()

	h.logger.Info("client unregistered", "session_id", client.SessionID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, clients := range h.sessions {
		for client := range clients {
			client.CloseSend()
		}
		delete(h.sessions, id)
	}
}

// deliver sends an event to every connection of its session. A connection
// whose buffer is full is dropped.
func (h *Hub) deliver(event domain.Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[event.SessionID]))
	for client := range h.sessions[event.SessionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("delivering event",
		"event_type", event.Type,
		"session_id", event.SessionID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		if !client.trySend(event) {
			h.logger.Warn("client send buffer full, unregistering", "session_id", client.SessionID)
			h.unregisterClient(client)
		}
	}
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.sessions {
		count += len(clients)
	}
	return count
}

// IsSessionConnected reports whether a session has any open connection.
func (h *Hub) IsSessionConnected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}
