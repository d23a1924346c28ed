package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"go.uber.org/zap"

	"github.com/tecu23/minesweeper-server/pkg/janitor"
)

// cleanupQuery is the optional query of POST /cleanup
type cleanupQuery struct {
	IdleMinutes int `schema:"idle_minutes"`
}

func parseCleanupQuery(src map[string][]string) (cleanupQuery, error) {
	var q cleanupQuery
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	err := dec.Decode(&q, src)
	return q, err
}

type cleanupResponse struct {
	Message string `json:"message"`
	janitor.CleanupReport
	Memory memoryStats `json:"memoryUsage"`
}

// handleCleanup evicts finished and idle sessions right away
func (app *application) handleCleanup(w http.ResponseWriter, r *http.Request) {
	q, err := parseCleanupQuery(r.URL.Query())
	if err != nil || q.IdleMinutes < 0 {
		app.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "idle_minutes must be a non-negative integer"})
		return
	}

	var report janitor.CleanupReport
	err = app.Hub.Do(r.Context(), func() {
		report = app.Janitor.ForceCleanup(time.Duration(q.IdleMinutes) * time.Minute)
	})
	if err != nil {
		app.Logger.Error("Forced cleanup failed", zap.Error(err))
		app.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}

	app.writeJSON(w, http.StatusOK, cleanupResponse{
		Message:       fmt.Sprintf("Cleaned up %d inactive games", report.Removed),
		CleanupReport: report,
		Memory:        readMemoryStats(),
	})
}
