package chat

import (
	"net/http"

	myMiddleware "secret-room/internal/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Clients are anonymous browsers on any origin; the JWT is the gate.
	},
}

// ServeWs upgrades an authenticated request and starts the connection's pumps.
func (g *Gateway) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), userID, conn, g.newLimiter())
	g.hub.Register(client)
	logrus.WithFields(logrus.Fields{"conn_id": client.ID, "user_id": userID}).Info("Websocket connected")

	go client.writePump()
	go client.readPump(g)
}
