// Package transport adapts network connections into bidirectional line
// streams consumed by the chat router.
package transport

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// DefaultMaxLineBytes is the longest line accepted when no limit is configured.
const DefaultMaxLineBytes = 64 * 1024

// ErrClosed is returned by WriteLine and ReadLine after Close.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a line-oriented view of a client connection. ReadLine returns
// io.EOF when the peer closes the stream. Implementations allow one reader
// and any number of concurrent writers.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	SetReadDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

// IsExpectedCloseError reports whether err is the usual noise produced when a
// peer goes away or the connection was closed locally.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}

func trimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}
