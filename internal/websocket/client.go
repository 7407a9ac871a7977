package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 5 / 6
	sendBuffer     = 16
	maxInboundSize = 512
)

// Endpoint upgrades authenticated requests into live portfolio streams.
type Endpoint struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewEndpoint accepts browser connections from origins only. An empty list
// or "*" accepts any origin, matching the HTTP CORS policy.
func NewEndpoint(hub *Hub, origins []string) *Endpoint {
	anyOrigin := len(origins) == 0 || slices.Contains(origins, "*")
	return &Endpoint{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || slices.Contains(origins, origin)
			},
		},
	}
}

// Client is one live connection for one account. It only ever receives;
// inbound frames are read to service pongs and then discarded.
type Client struct {
	hub       *Hub
	accountID string
	conn      *websocket.Conn
	send      chan []byte
	detach    sync.Once
}

// Serve streams accountID's trade updates until the peer goes away. hello is
// queued as the first frame so the client starts from current state.
func (e *Endpoint) Serve(w http.ResponseWriter, r *http.Request, accountID string, hello PortfolioUpdate) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "websocket upgrade failed", "account_id", accountID, "error", err)
		return
	}
	c := &Client{
		hub:       e.hub,
		accountID: accountID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	if payload, err := json.Marshal(hello); err == nil {
		c.send <- payload
	}
	e.hub.Register(accountID, c)
	slog.DebugContext(r.Context(), "portfolio stream opened", "account_id", accountID, "streams", e.hub.ClientCount(accountID))
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) close() {
	c.detach.Do(func() {
		c.hub.Unregister(c.accountID, c)
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("portfolio stream closed", "account_id", c.accountID, "error", err)
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		var err error
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(websocket.TextMessage, message)
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, payload)
}
