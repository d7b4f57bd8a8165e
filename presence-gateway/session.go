package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// sendBufferSize is the per-connection outbound queue depth; events beyond
// it are dropped rather than blocking a handler.
var sendBufferSize = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWS upgrades a client channel. The handshake must carry a user_id;
// without one the connection is rejected before any state is created.
func (g *gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("user_id")
	if userId == "" {
		http.Error(w, "user_id is required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "user", userId, "error", err)
		return
	}

	c := &client{
		id:     uuid.NewString(),
		userId: userId,
		send:   make(chan []byte, sendBufferSize),
	}
	g.connect(c, r.UserAgent())

	go g.writePump(conn, c)
	g.readLoop(conn, c)
}

// readLoop processes inbound frames in arrival order for this connection.
// On exit the full disconnect cleanup runs.
func (g *gateway) readLoop(conn *websocket.Conn, c *client) {
	defer func() {
		conn.Close()
		g.disconnect(c)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Websocket closed unexpectedly", "user", c.userId, "connId", c.id, "error", err)
			}
			return
		}
		g.dispatch(c, raw)
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// pings. It exits once the socket errors; closing the socket also unblocks
// the read loop.
func (g *gateway) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
