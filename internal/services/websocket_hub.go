package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WebSocketHub fans simulator ticks out to the connections of the user they
// belong to. A single goroutine (Run) owns the client set.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan models.MarketTick
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	log        *logrus.Logger
}

type WebSocketClient struct {
	hub    *WebSocketHub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func NewWebSocketHub(log *logrus.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan models.MarketTick, 64),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves registrations and ticks until ctx is cancelled, then closes
// every client.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.WithFields(logrus.Fields{
				"user_id": client.userID,
				"clients": len(h.clients),
			}).Debug("WebSocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.WithFields(logrus.Fields{
					"user_id": client.userID,
					"clients": len(h.clients),
				}).Debug("WebSocket client disconnected")
			}

		case tick := <-h.broadcast:
			message, err := json.Marshal(tick)
			if err != nil {
				h.log.WithError(err).Error("Failed to marshal market tick")
				continue
			}

			for client := range h.clients {
				if client.userID != tick.UserID {
					continue
				}
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Publish queues a tick for the connections of tick.UserID. Ticks published
// after the hub stopped are dropped.
func (h *WebSocketHub) Publish(tick models.MarketTick) {
	select {
	case h.broadcast <- tick:
	case <-h.done:
	}
}

func (h *WebSocketHub) RegisterClient(conn *websocket.Conn, userID string) *WebSocketClient {
	client := &WebSocketClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
	return client
}

// ReadPump discards inbound messages and keeps the read deadline alive
// through pongs. It unregisters the client when the connection ends.
func (c *WebSocketClient) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("user_id", c.userID).Warn("WebSocket read error")
			}
			break
		}
	}
}

func (c *WebSocketClient) WritePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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
