package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds how long a single frame write may take.
	writeWait = 10 * time.Second
	// pongWait is how long the read side tolerates silence before the
	// connection is considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// SendQueueSize is the default per-connection outbound buffer. A consumer
	// that falls this far behind is evicted rather than queued further.
	SendQueueSize = 256
)

// Client is one live connection. UserID and DocumentID stay empty until the
// connection registers through a join, create_room, or join_room message.
type Client struct {
	UserID     string
	DocumentID string
	Send       chan []byte

	conn   *websocket.Conn
	logger *zap.Logger
}

// NewClient wraps a websocket connection. The caller owns starting the pumps.
func NewClient(conn *websocket.Conn, queueSize int, logger *zap.Logger) *Client {
	if queueSize <= 0 {
		queueSize = SendQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Send:   make(chan []byte, queueSize),
		conn:   conn,
		logger: logger,
	}
}

// Registered reports whether the connection has completed a join and carries
// room identity.
func (c *Client) Registered() bool {
	return c.UserID != "" && c.DocumentID != ""
}

// ReadPump delivers inbound frames to handle until the connection errors or
// closes, then invokes disconnect exactly once. It must run on its own
// goroutine; it is the connection's only reader.
func (c *Client) ReadPump(handle func(raw []byte), disconnect func()) {
	defer func() {
		disconnect()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		handle(raw)
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings. It exits when the queue is closed (eviction) or a write
// fails. It must run on its own goroutine; it is the connection's only
// writer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
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
