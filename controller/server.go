package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebServer is the control surface: HTTP endpoints for health and status,
// a POST endpoint for lifecycle and parameter commands, and a websocket
// stream of per-tick snapshots for dashboard clients.
type WebServer struct {
	sim       *Simulator
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	done      chan struct{}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	State     State   `json:"state"`
	Elapsed   string  `json:"elapsed"`
	Yield     float64 `json:"yield"`
	Uptime    string  `json:"uptime"`
}

// ControlRequest is the body of a POST /api/control call. Command is one of
// start, pause, reset; the optional fields adjust parameters and may be
// combined with any command or sent alone with an empty command.
type ControlRequest struct {
	Command            string   `json:"command,omitempty"`
	TiltDeg            *float64 `json:"tilt_deg,omitempty"`
	ElectrolytePct     *float64 `json:"electrolyte_pct,omitempty"`
	Epsilon            *float64 `json:"epsilon,omitempty"`
	DecisionCadenceSec *float64 `json:"decision_cadence_sec,omitempty"`
	LearnerEnabled     *bool    `json:"learner_enabled,omitempty"`
}

// NewWebServer creates a web server for the simulator. Port <= 0 disables it.
func NewWebServer(sim *Simulator, port int) *WebServer {
	if port <= 0 {
		return nil // Web server disabled
	}

	mux := http.NewServeMux()
	ws := &WebServer{
		sim:       sim,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		done: make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/api/health", ws.healthHandler)
	mux.HandleFunc("/api/status", ws.statusHandler)
	mux.HandleFunc("/api/control", ws.controlHandler)
	mux.HandleFunc("/api/ws", ws.wsHandler)

	return ws
}

// Start starts the web server and the snapshot broadcaster.
func (ws *WebServer) Start() error {
	if ws == nil {
		return nil // Web server disabled
	}

	go ws.broadcastSnapshots()

	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.sim.logger.Printf("Web server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws == nil {
		return nil // Web server disabled
	}

	close(ws.done)

	ws.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return ws.server.Shutdown(ctx)
}

// healthHandler handles the /api/health endpoint
func (ws *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := ws.sim.Snapshot()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		State:     snap.State,
		Elapsed:   snap.Elapsed,
		Yield:     snap.Yield,
		Uptime:    formatUptime(time.Since(ws.startTime)),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// statusHandler handles the /api/status endpoint (full snapshot)
func (ws *WebServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"snapshot":  ws.sim.Snapshot(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// controlHandler handles lifecycle commands and parameter updates.
func (ws *WebServer) controlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	switch req.Command {
	case "start":
		ws.sim.Start()
	case "pause":
		ws.sim.Pause()
	case "reset":
		ws.sim.Reset()
	case "":
		// Parameter-only update
	default:
		http.Error(w, fmt.Sprintf("Unknown command: %q", req.Command), http.StatusBadRequest)
		return
	}

	if req.TiltDeg != nil || req.ElectrolytePct != nil {
		config := ws.sim.Configuration()
		if req.TiltDeg != nil {
			config.TiltDeg = *req.TiltDeg
		}
		if req.ElectrolytePct != nil {
			config.ElectrolytePct = *req.ElectrolytePct
		}
		ws.sim.ApplyConfiguration(config)
	}

	if req.Epsilon != nil {
		ws.sim.SetEpsilon(*req.Epsilon)
	}
	if req.DecisionCadenceSec != nil {
		ws.sim.SetDecisionCadence(*req.DecisionCadenceSec)
	}
	if req.LearnerEnabled != nil {
		ws.sim.SetLearnerEnabled(*req.LearnerEnabled)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ws.sim.Snapshot()); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// wsHandler handles WebSocket connections
func (ws *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.sim.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}

	ws.clients.Store(conn, true)
	ws.sim.logger.Printf("WebSocket client connected: %s", conn.RemoteAddr())

	// Send the current snapshot immediately
	if err := conn.WriteJSON(ws.buildStreamMessage()); err != nil {
		ws.sim.logger.Printf("Failed to send initial snapshot: %v", err)
	}

	defer func() {
		ws.clients.Delete(conn)
		conn.Close()
		ws.sim.logger.Printf("WebSocket client disconnected: %s", conn.RemoteAddr())
	}()

	// Read messages from client (ping/pong, close)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.sim.logger.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// broadcastSnapshots periodically pushes the latest snapshot to all clients.
func (ws *WebServer) broadcastSnapshots() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hasClients := false
			ws.clients.Range(func(key, value any) bool {
				hasClients = true
				return false
			})
			if !hasClients {
				continue
			}

			message, err := json.Marshal(ws.buildStreamMessage())
			if err != nil {
				ws.sim.logger.Printf("Failed to marshal snapshot: %v", err)
				continue
			}

			ws.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					ws.sim.logger.Printf("WebSocket write error: %v", err)
					conn.Close()
					ws.clients.Delete(conn)
				}
				return true
			})
		case <-ws.done:
			return
		}
	}
}

// buildStreamMessage wraps the snapshot for the websocket stream.
func (ws *WebServer) buildStreamMessage() map[string]any {
	return map[string]any{
		"type":      "snapshot",
		"snapshot":  ws.sim.Snapshot(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// formatUptime formats a duration as a string with seconds rounded to integer
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	return fmt.Sprintf("%dm%ds", m, s)
}
