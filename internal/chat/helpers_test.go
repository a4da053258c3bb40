package chat

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/transport"
)

// deliveryLog records writes across several fake connections in the order they happened.
type deliveryLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *deliveryLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *deliveryLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// fakeConn is an in-memory transport.Conn. Inbound lines are queued with
// push; closing the inbound queue reads as io.EOF.
type fakeConn struct {
	name    string
	inbound chan string
	log     *deliveryLog

	mu       sync.Mutex
	written  []string
	writeErr error
	readErr  error
	gate     chan struct{}
	entered  chan struct{}
	attempts atomic.Int32

	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeConn(name string, log *deliveryLog) *fakeConn {
	return &fakeConn{
		name:    name,
		inbound: make(chan string, 64),
		log:     log,
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) push(lines ...string) {
	for _, line := range lines {
		c.inbound <- line
	}
}

func (c *fakeConn) hangUp() {
	close(c.inbound)
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// holdWrites blocks every write until release is called. entered receives
// once the first held write has started.
func (c *fakeConn) holdWrites() (entered <-chan struct{}, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	c.entered = make(chan struct{}, 1)
	gate := c.gate
	return c.entered, func() { close(gate) }
}

func (c *fakeConn) failReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

func (c *fakeConn) ReadLine() (string, error) {
	c.mu.Lock()
	readErr := c.readErr
	c.mu.Unlock()
	if readErr != nil {
		return "", readErr
	}

	select {
	case line, ok := <-c.inbound:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", transport.ErrClosed
	}
}

func (c *fakeConn) WriteLine(line string) error {
	c.attempts.Add(1)

	c.mu.Lock()
	gate, entered := c.gate, c.entered
	c.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	c.written = append(c.written, line)
	if c.log != nil {
		c.log.add(c.name + " <- " + line)
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	err := transport.ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = nil
	})
	return err
}

func (c *fakeConn) RemoteAddr() string { return c.name }

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) count(line string) int {
	n := 0
	for _, l := range c.lines() {
		if l == line {
			n++
		}
	}
	return n
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// waitForLine waits until the connection has been sent line.
func waitForLine(t *testing.T, c *fakeConn, line string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return slices.Contains(c.lines(), line)
	}, 2*time.Second, 5*time.Millisecond, "%s never received %q; got %q", c.name, line, c.lines())
}

var errWriteFailed = errors.New("write: broken connection")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(opts ...Option) *Router {
	return NewRouter(append([]Option{WithLogger(quietLogger())}, opts...)...)
}

// register performs the handshake for username and adds the session, without
// starting its read loop.
func register(t *testing.T, r *Router, username string, log *deliveryLog) (*Session, *fakeConn) {
	t.Helper()

	conn := newFakeConn(username, log)
	conn.push(username)

	s, err := r.handshake(conn)
	require.NoError(t, err)
	r.Add(s)
	return s, conn
}

// joinAsync runs Router.Join on a goroutine and returns a channel closed when it returns.
func joinAsync(r *Router, conn *fakeConn) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- r.Join(conn)
	}()
	return done
}
