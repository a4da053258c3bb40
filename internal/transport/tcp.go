package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPConn frames a stream connection into newline-terminated lines.
type TCPConn struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeMu      sync.Mutex
	writer       *bufio.Writer
	writeTimeout time.Duration
	closed       atomic.Bool
}

// TCPOption customizes a TCPConn.
type TCPOption func(*TCPConn)

// WithMaxLineBytes caps the length of a single inbound line.
func WithMaxLineBytes(n int) TCPOption {
	return func(c *TCPConn) {
		if n > 0 {
			c.scanner.Buffer(make([]byte, 0, min(n, 4096)), n)
		}
	}
}

// WithWriteTimeout bounds every WriteLine call. Zero means no deadline.
func WithWriteTimeout(d time.Duration) TCPOption {
	return func(c *TCPConn) {
		c.writeTimeout = d
	}
}

// NewTCP wraps conn. CRLF and LF terminators are both accepted, and a final
// line without terminator is still delivered before io.EOF.
func NewTCP(conn net.Conn, opts ...TCPOption) *TCPConn {
	c := &TCPConn{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
		writer:  bufio.NewWriter(conn),
	}
	c.scanner.Buffer(make([]byte, 0, 4096), DefaultMaxLineBytes)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadLine blocks until a full line arrives.
func (c *TCPConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}
	if err := c.scanner.Err(); err != nil {
		if c.closed.Load() {
			return "", ErrClosed
		}
		return "", fmt.Errorf("read line from %s: %w", c.RemoteAddr(), err)
	}
	return "", io.EOF
}

// WriteLine writes line followed by a newline and flushes.
func (c *TCPConn) WriteLine(line string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline for %s: %w", c.RemoteAddr(), err)
		}
	}
	if _, err := c.writer.WriteString(line); err != nil {
		return fmt.Errorf("write line to %s: %w", c.RemoteAddr(), err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write line to %s: %w", c.RemoteAddr(), err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("flush line to %s: %w", c.RemoteAddr(), err)
	}
	return nil
}

// SetReadDeadline forwards to the underlying connection.
func (c *TCPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close releases both directions of the connection. Calling it again returns ErrClosed.
func (c *TCPConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *TCPConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
