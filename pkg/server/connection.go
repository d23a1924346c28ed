// Package server moves messages between websocket clients and the game loop
package server

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tecu23/minesweeper-server/pkg/messages"
)

const maxMessageSize = 64 * 1024

// Connection is one websocket client
type Connection struct {
	ID      uuid.UUID
	ws      *websocket.Conn // The underlying Websocket connection
	hub     *Hub
	send    chan []byte // Buffered channel of outbound messages.
	writeMu sync.Mutex  // Mutex to protect concurrent writes to ws.
	limiter *rate.Limiter

	sessionID string                // set by the hub once the player is known
	pending   *messages.AuthPayload // identity given at upgrade time

	logger *zap.Logger
}

// ConnectionOption customises a connection
type ConnectionOption func(*Connection)

// WithAuth identifies the player up front instead of through an auth message
func WithAuth(auth messages.AuthPayload) ConnectionOption {
	return func(c *Connection) {
		if auth.SessionID != "" {
			c.pending = &auth
		}
	}
}

// WithRateLimit caps inbound messages at perSecond with the given burst.
// Messages over the limit are dropped.
func WithRateLimit(perSecond float64, burst int) ConnectionOption {
	return func(c *Connection) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func NewConnection(
	ws *websocket.Conn,
	hub *Hub,
	logger *zap.Logger,
	opts ...ConnectionOption,
) *Connection {
	c := &Connection{
		ID:     uuid.New(),
		ws:     ws,
		hub:    hub,
		send:   make(chan []byte, 256), // buffered for outgoing messages
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadPump handles inbound messages from the client
func (c *Connection) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)

	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("read error", zap.Error(err))
			} else {
				c.logger.Debug("connection closed",
					zap.String("connection_id", c.ID.String()),
					zap.Error(err))
			}
			break
		}

		// We only handle text
		if msgType != websocket.TextMessage {
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("Dropping message over rate limit",
				zap.String("connection_id", c.ID.String()))
			continue
		}

		var inbound messages.InboundMessage
		if err := json.Unmarshal(msg, &inbound); err != nil {
			c.logger.Error("Failed to parse inbound JSON", zap.Error(err))
			continue
		}

		c.hub.deliver(InboundHubMessage{
			Conn:    c,
			Message: inbound,
		})
	}
}

// WritePump handles outbound messages to the client
func (c *Connection) WritePump() {
	defer func() {
		c.ws.Close()
	}()

	for {
		message, ok := <-c.send
		if !ok {
			// Channel closed
			c.logger.Debug(
				"Send channel closed for connection",
				zap.String("connection_id", c.ID.String()),
			)
			c.writeMu.Lock()
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			c.writeMu.Unlock()
			return
		}
		c.writeMu.Lock()
		err := c.ws.WriteMessage(websocket.TextMessage, message)
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Error("write error", zap.Error(err))
			return
		}
	}
}

// SendJSON queues v for the client. It never blocks; when the client falls
// too far behind the message is dropped.
func (c *Connection) SendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Error marshaling JSON", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping message",
			zap.String("connection_id", c.ID.String()))
	}
}
