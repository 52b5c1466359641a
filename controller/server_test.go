package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testServer(t *testing.T) (*Simulator, *WebServer) {
	t.Helper()
	config := testConfig()
	config.ServerPort = 18099
	sim := NewSimulator(config, testLogger())
	ws := NewWebServer(sim, config.ServerPort)
	if ws == nil {
		t.Fatal("NewWebServer returned nil for a valid port")
	}
	return sim, ws
}

func TestNewWebServerDisabled(t *testing.T) {
	sim := NewSimulator(testConfig(), testLogger())

	if ws := NewWebServer(sim, 0); ws != nil {
		t.Error("NewWebServer with port 0 should return nil")
	}

	// Nil receivers are safe: disabled servers start and stop as no-ops.
	var ws *WebServer
	if err := ws.Start(); err != nil {
		t.Errorf("disabled Start returned error: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	sim, ws := testServer(t)
	sim.Start()
	sim.Tick(5)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	ws.healthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", rec.Code, http.StatusOK)
	}

	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.State != StateRunning {
		t.Errorf("health state = %v, want %v", health.State, StateRunning)
	}
	if health.Elapsed != "0:05" {
		t.Errorf("health elapsed = %q, want %q", health.Elapsed, "0:05")
	}
}

func TestHealthHandlerRejectsPost(t *testing.T) {
	_, ws := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	rec := httptest.NewRecorder()
	ws.healthHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestStatusHandler(t *testing.T) {
	sim, ws := testServer(t)
	sim.Start()
	sim.Tick(2)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	ws.statusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var response struct {
		Snapshot Snapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode status response: %v", err)
	}
	if response.Snapshot.ElapsedSec != 2 {
		t.Errorf("snapshot elapsed = %v, want 2", response.Snapshot.ElapsedSec)
	}
}

func TestControlHandlerLifecycle(t *testing.T) {
	sim, ws := testServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader(body))
		rec := httptest.NewRecorder()
		ws.controlHandler(rec, req)
		return rec
	}

	if rec := post(`{"command":"start"}`); rec.Code != http.StatusOK {
		t.Fatalf("start returned %d", rec.Code)
	}
	if sim.State() != StateRunning {
		t.Errorf("state after start command = %v", sim.State())
	}

	if rec := post(`{"command":"pause"}`); rec.Code != http.StatusOK {
		t.Fatalf("pause returned %d", rec.Code)
	}
	if sim.State() != StatePaused {
		t.Errorf("state after pause command = %v", sim.State())
	}

	if rec := post(`{"command":"reset"}`); rec.Code != http.StatusOK {
		t.Fatalf("reset returned %d", rec.Code)
	}
	if sim.State() != StateStopped {
		t.Errorf("state after reset command = %v", sim.State())
	}

	if rec := post(`{"command":"explode"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown command returned %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestControlHandlerParameters(t *testing.T) {
	sim, ws := testServer(t)

	body := `{"tilt_deg": 50, "electrolyte_pct": 1.4, "epsilon": 0.9, "decision_cadence_sec": 4, "learner_enabled": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader(body))
	rec := httptest.NewRecorder()
	ws.controlHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("parameter update returned %d", rec.Code)
	}

	config := sim.Configuration()
	if config.TiltDeg != 50 || config.ElectrolytePct != 1.4 {
		t.Errorf("configuration = %+v, want {50 1.4}", config)
	}

	if got := sim.Learner().Epsilon(); got != 0.9 {
		t.Errorf("epsilon = %v, want 0.9", got)
	}
	if got := sim.Learner().DecisionCadence(); got != 4 {
		t.Errorf("cadence = %v, want 4", got)
	}
}

func TestControlHandlerClampsParameters(t *testing.T) {
	sim, ws := testServer(t)

	body := `{"tilt_deg": 200, "electrolyte_pct": -3, "epsilon": 5, "decision_cadence_sec": 0.1}`
	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader(body))
	rec := httptest.NewRecorder()
	ws.controlHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("parameter update returned %d", rec.Code)
	}

	config := sim.Configuration()
	if config.TiltDeg != 60 || config.ElectrolytePct != 0 {
		t.Errorf("configuration = %+v, want clamped {60 0}", config)
	}
	if got := sim.Learner().Epsilon(); got != 1 {
		t.Errorf("epsilon = %v, want clamped to 1", got)
	}
	if got := sim.Learner().DecisionCadence(); got != 2 {
		t.Errorf("cadence = %v, want clamped to 2", got)
	}
}

func TestControlHandlerInvalidBody(t *testing.T) {
	_, ws := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	ws.controlHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body returned %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
