package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"imgacquisition/internal/logger"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Registrar tracks websocket clients that receive status events.
type Registrar interface {
	Register(client *websocket.Conn)
	Unregister(client *websocket.Conn)
}

// EventsWebsocketHandler subscribes a client to status events. Clients only
// listen; anything they send is discarded.
func EventsWebsocketHandler(hub Registrar, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warning("Status client closed with error: %v", err)
				}
				return
			}
		}
	}
}
