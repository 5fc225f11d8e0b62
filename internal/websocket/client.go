// Package websocket is the native-socket transport: it pumps frames between
// a gorilla connection and the protocol handler.
package websocket

import (
	"errors"
	"sync"
	"time"

	"tenant-hub/internal/protocol"
	"tenant-hub/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

var (
	errSendBufferFull   = errors.New("send buffer full")
	errConnectionClosed = errors.New("connection closed")
)

// Client is one live WebSocket connection. Send enqueues without blocking;
// a full buffer is treated as a failed delivery rather than stalling the
// broadcast path.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	handler *protocol.Handler

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, handler *protocol.Handler) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		handler: handler,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues data for the write pump. It reports a delivery failure when
// the connection is closed or the buffer is full.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads inbound frames and hands them to the protocol handler one
// at a time, preserving per-connection event ordering. On exit it drives
// the disconnect path exactly once.
func (c *Client) ReadPump() {
	reason := "connection closed"
	defer func() {
		c.close()
		c.handler.HandleDisconnect(c.id, reason)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.handler.HandleTransportError(c.id, err)
			}
			reason = err.Error()
			break
		}
		c.handler.HandleEvent(c, message)
	}
}

// WritePump drains the send buffer onto the socket and keeps the connection
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error on connection %s: %v", c.id, err)
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
