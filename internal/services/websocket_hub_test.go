package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souta-pqr/money-suppli/internal/logger"
	"github.com/souta-pqr/money-suppli/internal/models"
)

func startHub(t *testing.T) (*WebSocketHub, context.CancelFunc) {
	t.Helper()
	hub := NewWebSocketHub(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

// dialHub connects a websocket client for userID and waits until the hub has
// registered it.
func dialHub(t *testing.T, hub *WebSocketHub, userID string) *websocket.Conn {
	t.Helper()
	registered := make(chan struct{})
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.RegisterClient(conn, userID)
		close(registered)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("client was not registered")
	}
	return conn
}

func TestHubDeliversTicksToOwner(t *testing.T) {
	hub, _ := startHub(t)
	conn := dialHub(t, hub, "u1")

	hub.Publish(models.MarketTick{UserID: "u2", Value: decimal.NewFromInt(1)})
	hub.Publish(models.MarketTick{UserID: "u1", Value: decimal.NewFromInt(2)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2", got["portfolioValue"])
	assert.NotContains(t, got, "UserID")
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	hub, cancel := startHub(t)
	conn := dialHub(t, hub, "u1")

	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// publishing after shutdown must not block
	done := make(chan struct{})
	go func() {
		hub.Publish(models.MarketTick{UserID: "u1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked after shutdown")
	}
}
