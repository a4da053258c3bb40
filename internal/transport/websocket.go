package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn carries chat lines as WebSocket text frames, one line per frame.
// A frame holding several newline-separated lines is split and delivered in order.
type WebSocketConn struct {
	conn         *websocket.Conn
	addr         string
	writeMu      sync.Mutex
	writeTimeout time.Duration
	pending      []string
	closed       atomic.Bool
}

// NewWebSocket wraps an upgraded connection. maxLineBytes <= 0 selects
// DefaultMaxLineBytes. writeTimeout of zero means no deadline.
func NewWebSocket(conn *websocket.Conn, addr string, maxLineBytes int, writeTimeout time.Duration) *WebSocketConn {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	conn.SetReadLimit(int64(maxLineBytes))
	return &WebSocketConn{
		conn:         conn,
		addr:         addr,
		writeTimeout: writeTimeout,
	}
}

// ReadLine returns the next line. Close frames from the peer surface as io.EOF.
func (c *WebSocketConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", c.classifyReadError(err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.pending = strings.Split(trimEOL(string(data)), "\n")
	}

	line := trimEOL(c.pending[0])
	c.pending = c.pending[1:]
	return line, nil
}

func (c *WebSocketConn) classifyReadError(err error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("read line from %s: line too long: %w", c.addr, err)
	}
	return fmt.Errorf("read line from %s: %w", c.addr, err)
}

// WriteLine sends line as a single text frame.
func (c *WebSocketConn) WriteLine(line string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline for %s: %w", c.addr, err)
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("write line to %s: %w", c.addr, err)
	}
	return nil
}

// SetReadDeadline forwards to the underlying connection.
func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close sends a normal-closure frame on a best-effort basis and closes the socket.
func (c *WebSocketConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	c.writeMu.Unlock()

	return c.conn.Close()
}

// RemoteAddr returns the client address recorded at upgrade time.
func (c *WebSocketConn) RemoteAddr() string {
	return c.addr
}
