package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"
)

type memoryStats struct {
	HeapAlloc string `json:"heapUsed"`
	HeapSys   string `json:"heapTotal"`
	Sys       string `json:"sys"`
	NumGC     uint32 `json:"numGC"`
}

type gameCounts struct {
	ActiveCount   int `json:"activeCount"`
	TrackingCount int `json:"trackingCount"`
	InProgress    int `json:"inProgress"`
}

type statusResponse struct {
	Status      string      `json:"status"`
	Uptime      float64     `json:"uptime"`
	Memory      memoryStats `json:"memory"`
	Games       gameCounts  `json:"games"`
	Connections int         `json:"connections"`
	Timestamp   time.Time   `json:"timestamp"`
}

// handleHealth handles the GET /health endpoint
func (app *application) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","uptime":"%s"}`, time.Since(app.StartTime))
}

// handleStatus reports uptime, memory use and session counts
func (app *application) handleStatus(w http.ResponseWriter, r *http.Request) {
	var games gameCounts
	var connections int
	err := app.Hub.Do(r.Context(), func() {
		games.ActiveCount, games.TrackingCount = app.Repository.Counts()
		games.InProgress = len(app.Repository.ListActiveGames())
		connections = app.Hub.ConnectionCount()
	})
	if err != nil {
		app.Logger.Error("Failed to collect status", zap.Error(err))
		app.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}

	app.writeJSON(w, http.StatusOK, statusResponse{
		Status:      "ok",
		Uptime:      time.Since(app.StartTime).Seconds(),
		Memory:      readMemoryStats(),
		Games:       games,
		Connections: connections,
		Timestamp:   time.Now().UTC(),
	})
}

func readMemoryStats() memoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return memoryStats{
		HeapAlloc: megabytes(m.HeapAlloc),
		HeapSys:   megabytes(m.HeapSys),
		Sys:       megabytes(m.Sys),
		NumGC:     m.NumGC,
	}
}

func megabytes(b uint64) string {
	return fmt.Sprintf("%dMB", (b+(1<<19))>>20)
}

func (app *application) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Error("Failed to write response", zap.Error(err))
	}
}
