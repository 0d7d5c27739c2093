package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// client is a server-side websocket connection. Only writePump writes data
// frames to conn; Send just queues.
type client struct {
	actor models.Actor
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}

	writeWait time.Duration
	closeOnce sync.Once
}

func newClient(actor models.Actor, conn *websocket.Conn, buffer int, writeWait time.Duration) *client {
	return &client{
		actor:     actor,
		conn:      conn,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		writeWait: writeWait,
	}
}

// Send queues msg without blocking
func (c *client) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return ErrBufferFull
	}
}

// Close stops the write pump, which closes the connection
func (c *client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait),
			)
			return
		}
	}
}
