// This file implements the WebSocket endpoint that streams scan
// progress updates to clients while a discovery scan runs.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pingPeriod keeps idle connections alive through proxies.
	pingPeriod = 30 * time.Second
)

// WebSocketHandler streams scan progress events over WebSocket
// connections. Each connection subscribes to a single scan and is
// closed once the scan reaches a terminal state.
type WebSocketHandler struct {
	orchestrator Orchestrator
	logger       *slog.Logger
	metrics      metrics.MetricsRegistry
	upgrader     websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(orchestrator Orchestrator, logger *slog.Logger,
	metricsRegistry metrics.MetricsRegistry) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
		logger:       logger.With("handler", "websocket"),
		metrics:      metricsRegistry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The CORS policy already admits all origins.
				return true
			},
		},
	}
}

// ScanProgress handles GET /ws/scans/{id}. The current status is sent
// immediately, then every committed progress update until the scan
// finishes.
func (h *WebSocketHandler) ScanProgress(w http.ResponseWriter, r *http.Request) {
	scanID, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	// Subscribe before taking the snapshot: a scan that finishes
	// between the two is caught by the terminal snapshot, and one that
	// finishes after it is caught by the subscription.
	events, cancel := h.orchestrator.Subscribe(scanID)
	defer cancel()

	current, err := h.orchestrator.Status(scanID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "scan_id", scanID, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	if h.metrics != nil {
		h.metrics.Counter("websocket_connections_total", nil)
	}
	h.logger.Info("WebSocket client connected",
		"scan_id", scanID, "remote_addr", r.RemoteAddr)

	// Discard client messages so pongs and close frames are processed.
	go func() {
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	snapshot := map[string]interface{}{
		"scan_id":       current.ID,
		"status":        current.Status,
		"progress":      current.Progress,
		"total_devices": current.DeviceCount,
	}
	if writeErr := h.writeJSONMessage(conn, snapshot); writeErr != nil {
		return
	}
	if current.IsTerminal() {
		return
	}

	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if writeErr := h.writeJSONMessage(conn, event); writeErr != nil {
				return
			}
			if isTerminalStatus(event.Status) {
				return
			}
		case <-pinger.C:
			deadline := time.Now().Add(writeWait)
			if pingErr := conn.WriteControl(websocket.PingMessage, nil, deadline); pingErr != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeJSONMessage(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func isTerminalStatus(status string) bool {
	return status == device.ScanStatusCompleted || status == device.ScanStatusFailed
}
