package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kewei-lab/tableplan/internal/events"
)

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
	if resp.Service != "tableplan" {
		t.Errorf("expected service 'tableplan', got '%s'", resp.Service)
	}
}

type fakeStatusSource struct{}

func (fakeStatusSource) SceneStats() map[string]interface{} {
	return map[string]interface{}{"parse_success_count": 3}
}
func (fakeStatusSource) ExecutionState() string { return "idle" }
func (fakeStatusSource) CurrentTask() string    { return "stack the cubes" }

func TestStatusEndpoint(t *testing.T) {
	SetStatusSource(fakeStatusSource{})
	defer SetStatusSource(nil)

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()

	statusHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.ExecutionState != "idle" {
		t.Errorf("expected state 'idle', got '%s'", resp.ExecutionState)
	}
	if resp.CurrentTask != "stack the cubes" {
		t.Errorf("expected current task, got '%s'", resp.CurrentTask)
	}
	if resp.Scene["parse_success_count"] != float64(3) {
		t.Errorf("expected scene stats passthrough, got %v", resp.Scene)
	}
}

func TestStatusEndpoint_NoSource(t *testing.T) {
	SetStatusSource(nil)

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()

	statusHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestEventsEndpoint_ServesBuffer(t *testing.T) {
	events.Clear()
	events.Emit("info", "task.started", "stack the cubes", nil)
	events.Emit("info", "action.published", "move box1 on table", nil)

	req := httptest.NewRequest("GET", "/events", nil)
	w := httptest.NewRecorder()

	eventsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var got []events.Event
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Name != "task.started" {
		t.Errorf("expected 'task.started', got '%s'", got[0].Name)
	}
}

func TestRecordsEndpoint_RequiresTaskID(t *testing.T) {
	req := httptest.NewRequest("GET", "/records", nil)
	w := httptest.NewRecorder()

	recordsHandler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestRecordsEndpoint_WithoutStorage(t *testing.T) {
	req := httptest.NewRequest("GET", "/records?task_id=t1", nil)
	w := httptest.NewRecorder()

	recordsHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}
