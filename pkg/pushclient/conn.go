package pushclient

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is an established push connection
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens push connections. The context carries the handshake deadline.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket
type WebsocketDialer struct {
	Dialer    *websocket.Dialer
	Header    http.Header
	WriteWait time.Duration
}

// Dial implements Dialer
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	writeWait := d.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &wsConn{conn: c, writeWait: writeWait}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
