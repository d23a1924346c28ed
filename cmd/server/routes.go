package main

import (
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.handleHealth)
	mux.HandleFunc("GET /status", app.handleStatus)
	mux.HandleFunc("POST /cleanup", app.requireAdmin(app.handleCleanup))
	mux.HandleFunc("/ws", app.handleWebSocket)

	return mux
}
