package ws

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/internal/observability"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound queue size per connection.
	sendQueueSize = 64
)

// ConnInfo carries the observability identity of one connection.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one live websocket connection as seen by the hub. The user
// id is empty until the connection registers and is never reassigned.
type Client struct {
	ID   string
	Info ConnInfo

	conn *websocket.Conn
	send chan []byte

	// userID is written once by the hub under its lock.
	userID string
}

// NewClient wraps an accepted websocket connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	id := uuid.NewString()
	info.ConnID = id
	return &Client{
		ID:   id,
		Info: info,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// readPump reads frames from the websocket and hands them to dispatch.
// It runs in its own goroutine; on any read error the connection is
// torn down through the handler's disconnect path.
func (c *Client) readPump(dispatch func(*Client, []byte), disconnect func(*Client, string)) {
	var closeReason string
	defer func() {
		disconnect(c, closeReason)
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
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("relay", "ws_error")
				log.Printf("websocket read error: %v", err)
			}
			return
		}
		dispatch(c, raw)
	}
}

// writePump drains the send queue to the websocket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
