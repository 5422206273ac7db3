package chat

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 8192                // Fits a maximum-length message plus envelope.
	sendBuffer     = 256
	eventTimeout   = 5 * time.Second
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	ID     string
	UserID string

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	// roomID is only touched from the read pump, which handles this
	// connection's events one at a time.
	roomID string
}

func newClient(id, userID string, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		ID:      id,
		UserID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: limiter,
	}
}

// readPump feeds inbound frames to the gateway and runs disconnect cleanup
// when the connection ends.
func (c *Client) readPump(g *Gateway) {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		g.disconnect(ctx, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("Websocket closed unexpectedly")
			}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		g.handleFrame(ctx, c, raw)
		cancel()
	}
}

// writePump drains the send buffer to the connection and keeps it alive with
// pings. It exits when the hub closes the buffer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
