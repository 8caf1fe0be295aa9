package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mazequiz/pkg/types"
)

const (
	defaultWriteBuffer  = 100
	defaultWriteTimeout = 5 * time.Second
)

// Connection wraps a WebSocket connection behind a single writer
// goroutine so concurrent emitters never interleave frames.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded connection and starts its writer.
// Non-positive bufferSize or writeTimeout fall back to the defaults.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = defaultWriteBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop drains the queue onto the wire. Every exit path cancels the
// context so in-flight WriteJSON calls fail with ErrConnectionClosed;
// the channel itself is never closed because background emitters (quiz
// timers, reward settlement, ranking pushes) may still hold a reference
// to it after the loop is gone.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it for the writer goroutine. A queue
// that stays full past the write timeout or a closed connection fails
// the write.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Emit sends a named event in the wire envelope format.
func (c *Connection) Emit(event string, payload any) error {
	return c.WriteJSON(types.Event{Event: event, Payload: payload})
}

// Close shuts down the writer and the underlying connection. Safe to
// call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
