package route

import (
	"net/http"

	"imgacquisition/internal/config"
	"imgacquisition/internal/handler"
	"imgacquisition/internal/logger"
	"imgacquisition/internal/middleware"
	"imgacquisition/internal/repository"
)

// Deps is everything the status surface reads from.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Status     handler.StatusSource
	Hub        handler.Registrar
	Recordings repository.RecordingRepository
	Anomalies  repository.AnomalyRepository
}

// SetupRoutes registers the status API, the event websocket and the log
// endpoints, and wraps the mux with the token middleware.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/status", handler.StatusHandler(d.Status, d.Logger))
	mux.HandleFunc("/api/recordings", handler.RecordingsHandler(d.Recordings, d.Logger))
	mux.HandleFunc("/api/anomalies", handler.AnomaliesHandler(d.Anomalies, d.Logger))
	mux.HandleFunc("/api/events", handler.EventsWebsocketHandler(d.Hub, d.Logger))

	// Log endpoints
	mux.HandleFunc("/logs/info", handler.ShowInfoLogsHandler(d.Config))
	mux.HandleFunc("/logs/warning", handler.ShowWarningLogsHandler(d.Config))
	mux.HandleFunc("/logs/error", handler.ShowErrorLogsHandler(d.Config))

	mux.HandleFunc("/logs/info/clear", handler.ClearLogsHandler(d.Logger, "info.log"))
	mux.HandleFunc("/logs/warning/clear", handler.ClearLogsHandler(d.Logger, "warning.log"))
	mux.HandleFunc("/logs/error/clear", handler.ClearLogsHandler(d.Logger, "error.log"))

	return middleware.TokenMiddleware(d.Config.StatusToken)(mux)
}
