package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a Subscriber backed by a websocket connection. Send is only
// called from the hub's per-subscriber goroutine, which keeps a single writer
// on the connection.
type WSClient struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func NewWSClient(conn *websocket.Conn, writeTimeout time.Duration) *WSClient {
	return &WSClient{conn: conn, writeTimeout: writeTimeout}
}

func (c *WSClient) Send(payload []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// ReadUntilClosed discards inbound frames and returns when the peer goes
// away. Callers run it on the upgrading goroutine to notice disconnects.
func (c *WSClient) ReadUntilClosed() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
