package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/accounts/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	sendBufferSize = 16
)

// Timeouts controls the keep-alive of a connection. PingInterval must be
// less than PongWait.
type Timeouts struct {
	PingInterval time.Duration
	PongWait     time.Duration
}

// DefaultTimeouts returns a 60s pong wait with pings at 9/10 of it.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		PingInterval: 54 * time.Second,
		PongWait:     60 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.PongWait <= 0 {
		t.PongWait = d.PongWait
	}
	if t.PingInterval <= 0 || t.PingInterval >= t.PongWait {
		t.PingInterval = t.PongWait * 9 / 10
	}
	return t
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan domain.Event

	// SessionID is the API session this connection belongs to.
	SessionID string

	// OnClose runs once after the connection has been torn down.
	OnClose func()

	timeouts Timeouts
	logger   *slog.Logger

	// mu guards closed so nothing sends on a closed Send channel.
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, timeouts Timeouts, logger *slog.Logger) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan domain.Event, sendBufferSize),
		SessionID: sessionID,
		timeouts:  timeouts.withDefaults(),
		logger:    logger.With("session_id", sessionID),
	}
}

// Start registers the client with its hub and runs both pumps. It returns
// false, closing the connection, when the hub is no longer running.
func (c *Client) Start() bool {
	if !c.Hub.register(c) {
		_ = c.Conn.Close()
		if c.OnClose != nil {
			c.OnClose()
		}
		return false
	}
	go c.WritePump()
	go c.ReadPump()
	return true
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// trySend queues event without blocking. It reports false when the buffer
// is full or the client is closed.
func (c *Client) trySend(event domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- event:
		return true
	default:
		return false
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		_ = c.Conn.Close()
		if c.OnClose != nil {
			c.OnClose()
		}
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.timeouts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.Conn.WriteJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type string `json:"type"`
}

func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case "PING":
		c.trySend(domain.Event{Type: domain.EventPong, SessionID: c.SessionID})
	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}
