package routes

import (
	"net/http"

	"facecapture/internal/handler"
	"facecapture/internal/logger"
	"facecapture/internal/middleware"
	wshub "facecapture/internal/service/websocket"
)

// SetupRoutes registers the pipeline API, the snapshot stream, log
// endpoints and the health check, wrapped in request logging.
func SetupRoutes(ctrl handler.Pipeline, hub *wshub.HubService, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Pipeline API
	mux.HandleFunc("/api/pipeline", handler.GetPipelineHandler(ctrl))
	mux.HandleFunc("/api/pipeline/start", handler.StartPipelineHandler(ctrl, logger))
	mux.HandleFunc("/api/pipeline/stop", handler.StopPipelineHandler(ctrl, logger))
	mux.HandleFunc("/api/pipeline/restart", handler.RestartPipelineHandler(ctrl, logger))
	mux.HandleFunc("/api/pipeline/stream", handler.PipelineStreamHandler(ctrl, hub, logger))

	// Log endpoints
	for _, level := range logger.Levels() {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(logger, level))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, level))
	}

	mux.HandleFunc("/healthz", handler.HealthHandler)

	return middleware.LoggingMiddleware(logger)(mux)
}
