package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/kewei-lab/tableplan/internal/events"
	"github.com/kewei-lab/tableplan/internal/version"
)

// StatusSource exposes the agent's live state for the status endpoint.
type StatusSource interface {
	SceneStats() map[string]interface{}
	ExecutionState() string
	CurrentTask() string
}

var statusSource StatusSource

// SetStatusSource sets the source used by the status endpoint.
func SetStatusSource(s StatusSource) {
	statusSource = s
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "tableplan",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type StatusResponse struct {
	Service        string                 `json:"service"`
	Version        string                 `json:"version"`
	ExecutionState string                 `json:"execution_state,omitempty"`
	CurrentTask    string                 `json:"current_task,omitempty"`
	Scene          map[string]interface{} `json:"scene,omitempty"`
	Timestamp      string                 `json:"ts"`
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Service:   "tableplan",
		Version:   version.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if statusSource != nil {
		resp.ExecutionState = statusSource.ExecutionState()
		resp.CurrentTask = statusSource.CurrentTask()
		resp.Scene = statusSource.SceneStats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// With Postgres attached, serve history from there; otherwise fall
	// back to the in-memory ring buffer.
	if pg := events.GetPostgresClient(); pg != nil {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		rows, err := pg.Query(limit)
		if err == nil {
			_ = json.NewEncoder(w).Encode(rows)
			return
		}
		log.Printf("events query failed, serving buffer: %v", err)
	}

	_ = json.NewEncoder(w).Encode(events.Snapshot())
}

// recordsHandler serves the persisted execution records of one task.
// Records only exist when Postgres is attached.
func recordsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "task_id query parameter is required"})
		return
	}

	pg := events.GetPostgresClient()
	if pg == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "record storage is not configured"})
		return
	}

	rows, err := pg.QueryRecords(taskID)
	if err != nil {
		log.Printf("records query failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "records query failed"})
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

// ListenAndServe starts the API server on the given port.
// It blocks until the server exits.
func ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/status", statusHandler)
	mux.HandleFunc("/events", eventsHandler)
	mux.HandleFunc("/records", recordsHandler)
	mux.HandleFunc("/ws/events", wsEventsHandler)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("API listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}

// Start starts the API server in a goroutine.
// Errors are logged but do not stop the caller.
func Start(port int) {
	go func() {
		if err := ListenAndServe(port); err != nil {
			log.Printf("api server error: %v", err)
		}
	}()
}
