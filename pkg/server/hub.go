package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/minesweeper-server/pkg/events"
	"github.com/tecu23/minesweeper-server/pkg/messages"
	"github.com/tecu23/minesweeper-server/pkg/minefield"
)

// ErrHubStopped is returned for work handed to a hub that no longer runs
var ErrHubStopped = errors.New("hub stopped")

// Handler carries out the actions players send. The hub calls it from its
// own loop only.
type Handler interface {
	Connect(sessionID, userName, userImage string)
	Reveal(sessionID string, row, col int) error
	Chord(sessionID string, row, col int, candidates []minefield.Pos) error
	ToggleFlag(sessionID string, row, col int) error
	Restart(sessionID string) error
	Disconnect(sessionID string)
}

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded envelope
}

// Hub keeps track of all active connections and of the session each one
// plays. It is the only goroutine that touches game state: inbound actions,
// timer callbacks and admin work all run inside Run.
type Hub struct {
	connections map[*Connection]bool   // Registered connections
	sessions    map[string]*Connection // Session id to the connection playing it

	register   chan *Connection       // Incoming registration
	unregister chan *Connection       // Incoming unregistration
	inbound    chan InboundHubMessage // Inbound messages routed to the handler
	tasks      chan func()            // Work scheduled onto the loop
	timers     *timerQueue            // Delayed work, run in due order
	done       chan struct{}          // Closed when Run returns

	handler   Handler
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewHub creates a new hub. SetHandler must be called before Run.
func NewHub(publisher *events.Publisher, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		sessions:    make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan InboundHubMessage),
		tasks:       make(chan func()),
		timers:      newTimerQueue(),
		done:        make(chan struct{}),
		publisher:   publisher,
		logger:      logger,
	}
}

// SetHandler sets the receiver of player actions
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Run is the main execution of the hub. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.handleInbound(msg)

		case task := <-h.tasks:
			task()

		case <-h.timers.wake:
			h.runDue()
		}
	}
}

// Register hands a new connection to the hub
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection from the hub
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) deliver(msg InboundHubMessage) {
	select {
	case h.inbound <- msg:
	case <-h.done:
	}
}

// AfterFunc runs f on the hub loop once d has passed. Callbacks run in the
// order they fall due, ties in the order they were scheduled.
func (h *Hub) AfterFunc(d time.Duration, f func()) {
	select {
	case <-h.done:
		return
	default:
	}
	h.timers.add(d, f)
}

// runDue runs every delayed task that has fallen due, earliest first
func (h *Hub) runDue() {
	for {
		f, ok := h.timers.popDue(time.Now())
		if !ok {
			return
		}
		f()
	}
}

// Do runs f on the hub loop and waits for it to finish
func (h *Hub) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		f()
	}

	select {
	case h.tasks <- task:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendState pushes a game state to the connection playing sessionID. States
// for sessions nobody is connected to are dropped.
func (h *Hub) SendState(sessionID string, state messages.GameStatePayload) {
	conn, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	h.sendMessage(conn, messages.OutboundMessage{
		Event:   messages.EventGameState,
		Payload: state,
	})
}

// ConnectionCount returns the number of open connections. Call it on the
// hub loop.
func (h *Hub) ConnectionCount() int {
	return len(h.connections)
}

func (h *Hub) registerConnection(conn *Connection) {
	h.connections[conn] = true
	h.logger.Debug("connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("connections", len(h.connections)))

	if conn.pending != nil {
		auth := *conn.pending
		conn.pending = nil
		h.attach(conn, auth)
	}
}

func (h *Hub) unregisterConnection(conn *Connection) {
	if _, ok := h.connections[conn]; !ok {
		return
	}
	delete(h.connections, conn)
	close(conn.send)

	h.logger.Debug("connection unregistered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("connections", len(h.connections)))

	id := conn.sessionID
	if h.publisher != nil {
		h.publisher.Publish(events.Event{
			Type:      events.EventConnectionClosed,
			SessionID: id,
			Payload: map[string]string{
				"connection_id": conn.ID.String(),
			},
		})
	}

	if id == "" || h.sessions[id] != conn {
		return
	}
	delete(h.sessions, id)
	h.handler.Disconnect(id)
}

// attach binds conn to a session. A newer connection for the same session
// takes over from the older one.
func (h *Hub) attach(conn *Connection, auth messages.AuthPayload) {
	if auth.SessionID == "" {
		h.sendError(conn, "sessionId is required")
		return
	}
	if conn.sessionID != "" && conn.sessionID != auth.SessionID {
		h.sendError(conn, "connection already bound to another session")
		return
	}

	if prev, ok := h.sessions[auth.SessionID]; ok && prev != conn {
		h.logger.Info("session taken over by a new connection",
			zap.String("session_id", auth.SessionID),
			zap.String("previous_connection_id", prev.ID.String()),
			zap.String("connection_id", conn.ID.String()))
		// the old connection stays open but plays nothing until it
		// authenticates again
		prev.sessionID = ""
		h.sendError(prev, "Session opened on another connection")
	}

	conn.sessionID = auth.SessionID
	h.sessions[auth.SessionID] = conn
	h.handler.Connect(auth.SessionID, auth.UserName, auth.UserImage)
}

// handleInbound decodes the message from a client and routes it
func (h *Hub) handleInbound(msg InboundHubMessage) {
	conn := msg.Conn
	if !h.connections[conn] {
		return
	}

	if msg.Message.Event == messages.EventAuth {
		var payload messages.AuthPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "Invalid auth payload")
			return
		}
		h.attach(conn, payload)
		return
	}

	id := conn.sessionID
	if id == "" {
		h.sendError(conn, "Not authenticated")
		return
	}

	var err error
	switch msg.Message.Event {
	case messages.EventRevealCell:
		var payload messages.CellPayload
		if json.Unmarshal(msg.Message.Payload, &payload) != nil {
			h.sendError(conn, "Invalid revealCell payload")
			return
		}
		err = h.handler.Reveal(id, payload.Row, payload.Col)

	case messages.EventChordAction:
		var payload messages.ChordPayload
		if json.Unmarshal(msg.Message.Payload, &payload) != nil {
			h.sendError(conn, "Invalid chordAction payload")
			return
		}
		err = h.handler.Chord(id, payload.Row, payload.Col, payload.CellsToReveal)

	case messages.EventToggleFlag:
		var payload messages.CellPayload
		if json.Unmarshal(msg.Message.Payload, &payload) != nil {
			h.sendError(conn, "Invalid toggleFlag payload")
			return
		}
		err = h.handler.ToggleFlag(id, payload.Row, payload.Col)

	case messages.EventRestartGame:
		err = h.handler.Restart(id)

	default:
		h.sendError(conn, "Unknown message type")
		return
	}

	if err != nil {
		h.logger.Debug("action rejected",
			zap.String("session_id", id),
			zap.String("event", msg.Message.Event),
			zap.Error(err))
		h.sendError(conn, err.Error())
	}
}

func (h *Hub) shutdown() {
	h.timers.stop()
	for conn := range h.connections {
		delete(h.connections, conn)
		close(conn.send)
	}
	h.sessions = make(map[string]*Connection)
	h.logger.Info("hub stopped")
}

func (h *Hub) sendError(conn *Connection, msg string) {
	resp := messages.OutboundMessage{
		Event: messages.EventError,
		Payload: messages.ErrorPayload{
			Message: msg,
		},
	}
	h.sendMessage(conn, resp)
}

func (h *Hub) sendMessage(conn *Connection, msg messages.OutboundMessage) {
	conn.SendJSON(msg)
}
