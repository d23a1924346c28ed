package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tecu23/minesweeper-server/pkg/messages"
	"github.com/tecu23/minesweeper-server/pkg/server"
)

// handleWebSocket handles WebSocket connections. The player may be named in
// the query or later through an auth message.
func (app *application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP connection to WebSocket
	ws, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	q := r.URL.Query()
	auth := messages.AuthPayload{
		SessionID: q.Get("sessionId"),
		UserName:  q.Get("userName"),
		UserImage: q.Get("userImage"),
	}

	// Create and register connection
	conn := server.NewConnection(ws, app.Hub, app.Logger,
		server.WithAuth(auth),
		server.WithRateLimit(app.Config.Server.RateLimit, app.Config.Server.RateBurst),
	)
	app.Hub.Register(conn)

	app.Logger.Info("WebSocket connection established",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("connection_id", conn.ID.String()),
		zap.String("session_id", auth.SessionID))

	// Start connection read/write goroutines
	go conn.WritePump()
	go conn.ReadPump()
}
