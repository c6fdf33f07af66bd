package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"facecapture/internal/logger"
	"facecapture/internal/service/pipeline"
	wshub "facecapture/internal/service/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Pipeline is the part of pipeline.Controller the HTTP surface drives.
type Pipeline interface {
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	Snapshot() pipeline.Snapshot
}

// GetPipelineHandler returns the current snapshot.
func GetPipelineHandler(ctrl Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, ctrl.Snapshot())
	}
}

// StartPipelineHandler starts a session. A failed start answers 503 with
// the Failed snapshot as body.
func StartPipelineHandler(ctrl Pipeline, logger *logger.Logger) http.HandlerFunc {
	return controlHandler(ctrl, logger, "start", http.StatusServiceUnavailable, ctrl.Start)
}

// RestartPipelineHandler abandons the current session and starts a new one.
func RestartPipelineHandler(ctrl Pipeline, logger *logger.Logger) http.HandlerFunc {
	return controlHandler(ctrl, logger, "restart", http.StatusServiceUnavailable, ctrl.Restart)
}

// StopPipelineHandler ends the current session.
func StopPipelineHandler(ctrl Pipeline, logger *logger.Logger) http.HandlerFunc {
	stop := func(context.Context) error { return ctrl.Stop() }
	return controlHandler(ctrl, logger, "stop", http.StatusInternalServerError, stop)
}

func controlHandler(ctrl Pipeline, logger *logger.Logger, action string, failStatus int, op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := http.StatusOK
		if err := op(r.Context()); err != nil {
			logger.Error("Pipeline %s failed: %v", action, err)
			status = failStatus
		}
		writeJSON(w, status, ctrl.Snapshot())
	}
}

// PipelineStreamHandler upgrades to WebSocket, sends the current snapshot
// and then every change broadcast through the hub.
func PipelineStreamHandler(ctrl Pipeline, hub *wshub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		greeting := func() ([]byte, error) {
			return json.Marshal(ctrl.Snapshot())
		}
		if err := hub.Register(connection, greeting); err != nil {
			logger.Warning("Viewer rejected: %v", err)
			connection.Close()
			return
		}
		defer hub.Unregister(connection)

		logger.Info("Viewer connected")

		for {
			_, _, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Warning("Viewer disconnected: %v", err)
				}
				break
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
