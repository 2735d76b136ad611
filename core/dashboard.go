package core

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sabbir-lite-0/repolens/utils"
)

// Dashboard pushes live analysis progress to WebSocket clients: dimension
// lifecycle events while a batch runs, then a report summary.
type Dashboard struct {
	logger     *utils.Logger
	clients    map[*websocket.Conn]bool
	upgrader   websocket.Upgrader
	clientsMux sync.Mutex
}

type DashboardMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewDashboard(logger *utils.Logger) *Dashboard {
	return &Dashboard{
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (d *Dashboard) HandleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	d.clientsMux.Lock()
	d.clients[ws] = true
	d.clientsMux.Unlock()

	d.logger.Info("New dashboard client connected")

	for {
		var msg map[string]interface{}
		if err := ws.ReadJSON(&msg); err != nil {
			d.logger.Debug("Dashboard client disconnected: %v", err)
			d.clientsMux.Lock()
			delete(d.clients, ws)
			d.clientsMux.Unlock()
			break
		}
	}
}

// BroadcastProgress relays a dispatcher lifecycle event. Wired as the
// dispatcher's ProgressFunc in daemon mode.
func (d *Dashboard) BroadcastProgress(repository, dimension, event string) {
	d.BroadcastUpdate(DashboardMessage{
		Type: event,
		Payload: map[string]interface{}{
			"repository": repository,
			"dimension":  dimension,
			"time":       time.Now(),
		},
	})
}

// BroadcastReport announces a finished analysis with its headline numbers.
func (d *Dashboard) BroadcastReport(report CompositeReport) {
	d.BroadcastUpdate(DashboardMessage{
		Type: "analysis_completed",
		Payload: map[string]interface{}{
			"repository":     report.Repository,
			"overall_score":  report.OverallScore,
			"maturity_level": report.MaturityLevel,
			"fallback":       report.Fallback,
			"time":           report.GeneratedAt,
		},
	})
}

func (d *Dashboard) BroadcastUpdate(message DashboardMessage) {
	d.clientsMux.Lock()
	defer d.clientsMux.Unlock()

	if len(d.clients) == 0 {
		return
	}

	messageJSON, err := json.Marshal(message)
	if err != nil {
		d.logger.Error("Failed to marshal dashboard message: %v", err)
		return
	}

	for client := range d.clients {
		if err := client.WriteMessage(websocket.TextMessage, messageJSON); err != nil {
			d.logger.Debug("Dropping dashboard client: %v", err)
			client.Close()
			delete(d.clients, client)
		}
	}
}

func (d *Dashboard) GetStats() map[string]interface{} {
	d.clientsMux.Lock()
	defer d.clientsMux.Unlock()
	return map[string]interface{}{
		"connected_clients": len(d.clients),
		"timestamp":         time.Now().Format(time.RFC3339),
	}
}
