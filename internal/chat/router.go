package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/linechat/internal/metrics"
	"github.com/Tyrowin/linechat/internal/transport"
)

// AnonymousPrefix starts every generated username.
const AnonymousPrefix = "Anonymous - "

// ErrShutdown is returned for connections offered to a router after Shutdown.
var ErrShutdown = errors.New("chat: router is shut down")

// Router keeps the roster of live sessions and routes lines between them.
type Router struct {
	mu       sync.Mutex
	sessions []*Session
	pending  map[transport.Conn]struct{}
	closed   bool

	anonymousID atomic.Int64
	wg          sync.WaitGroup

	logger           *slog.Logger
	metrics          *metrics.ChatMetrics
	clock            clockwork.Clock
	rateBurst        int
	rateInterval     time.Duration
	handshakeTimeout time.Duration
	tcpOptions       []transport.TCPOption
}

// NewRouter creates an empty Router. Without WithMetrics the collectors are
// registered on a private registry.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		pending: make(map[transport.Conn]struct{}),
		logger:  slog.Default(),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewChatMetrics(prometheus.NewRegistry())
	}
	return r
}

// Serve accepts connections from ln until accept fails or ctx is cancelled.
// Each connection completes its handshake on the accepting goroutine, is
// registered, and then reads on its own goroutine. The listener is closed on
// return. Cancellation yields a nil error.
func (r *Router) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer ln.Close()

	r.logger.Info("chat server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("chat listener stopped", "addr", ln.Addr().String())
				return nil
			}
			r.logger.Error("accept failed, closing listener", "addr", ln.Addr().String(), "error", err)
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}

		r.logger.Info("client connected", "remote", conn.RemoteAddr().String())

		s, err := r.admit(transport.NewTCP(conn, r.tcpOptions...))
		if err != nil {
			r.logger.Warn("handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
			continue
		}

		go func() {
			defer r.wg.Done()
			s.run()
		}()
	}
}

// Join runs the handshake over conn, registers the session and blocks in its
// read loop until the session ends. It is used by transports that already
// own a goroutine per connection.
func (r *Router) Join(conn transport.Conn) error {
	s, err := r.admit(conn)
	if err != nil {
		return err
	}

	defer r.wg.Done()
	s.run()
	return nil
}

// admit runs the handshake for conn and registers the resulting session. On
// success the caller holds one count on r.wg and releases it after run.
func (r *Router) admit(conn transport.Conn) (*Session, error) {
	if !r.track(conn) {
		r.closeTransport(conn)
		return nil, ErrShutdown
	}

	s, err := r.handshake(conn)
	if err != nil {
		r.untrack(conn)
		r.wg.Done()
		return nil, err
	}

	if !r.Add(s) {
		s.Close()
		r.wg.Done()
		return nil, ErrShutdown
	}
	return s, nil
}

// track records conn as handshaking so Shutdown can close it.
func (r *Router) track(conn transport.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.pending[conn] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *Router) untrack(conn transport.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, conn)
}

// Shutdown tears down every live session and waits for their read loops to
// return or for ctx to expire.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	live := append([]*Session(nil), r.sessions...)
	handshaking := make([]transport.Conn, 0, len(r.pending))
	for conn := range r.pending {
		handshaking = append(handshaking, conn)
	}
	r.mu.Unlock()

	r.logger.Info("closing sessions", "count", len(live), "handshaking", len(handshaking))
	for _, conn := range handshaking {
		r.closeTransport(conn)
	}
	for _, s := range live {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sessions: %w", ctx.Err())
	}
}

// handshake reads the username line and announces the new session.
func (r *Router) handshake(conn transport.Conn) (*Session, error) {
	if r.handshakeTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(r.handshakeTimeout)); err != nil {
			r.closeTransport(conn)
			return nil, fmt.Errorf("set handshake deadline: %w", err)
		}
	}

	username, err := conn.ReadLine()
	if errors.Is(err, transport.ErrClosed) || (err != nil && !transport.IsExpectedCloseError(err)) {
		r.closeTransport(conn)
		return nil, fmt.Errorf("read username: %w", err)
	}

	if r.handshakeTimeout > 0 {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			r.closeTransport(conn)
			return nil, fmt.Errorf("clear handshake deadline: %w", err)
		}
	}

	if strings.TrimSpace(username) == "" {
		username = r.nextAnonymousName()
	}

	s := newSession(r, conn, username)
	r.Broadcast(username+" has joined the chat.", s)
	return s, nil
}

func (r *Router) nextAnonymousName() string {
	return AnonymousPrefix + strconv.FormatInt(r.anonymousID.Add(1), 10)
}

func (r *Router) closeTransport(conn transport.Conn) {
	if err := conn.Close(); err != nil && !transport.IsExpectedCloseError(err) {
		r.logger.Warn("error closing connection", "remote", conn.RemoteAddr(), "error", err)
	}
}

// Add appends s to the roster. It reports false, leaving the roster
// unchanged, once the router has been shut down.
func (r *Router) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, s.conn)
	if r.closed {
		return false
	}
	r.sessions = append(r.sessions, s)
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	s.logger.Info("session registered", "active", len(r.sessions))
	return true
}

// Remove drops s from the roster and tells the remaining sessions it left.
// Removing an unknown session does nothing.
func (r *Router) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(s)
}

func (r *Router) removeLocked(s *Session) {
	i := r.indexLocked(s)
	if i < 0 {
		return
	}

	r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	s.logger.Info("session removed", "active", len(r.sessions))

	r.broadcastLocked(s.username+" has left the chat.", s)
}

func (r *Router) indexLocked(s *Session) int {
	for i, candidate := range r.sessions {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Broadcast delivers text to every registered session except excluding, in
// join order. A nil excluding reaches everyone.
func (r *Router) Broadcast(text string, excluding *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(text, excluding)
}

func (r *Router) broadcastLocked(text string, excluding *Session) {
	r.logger.Info("broadcast", "text", text)
	r.metrics.Broadcasts.Inc()

	var failed []*Session
	for _, s := range r.sessions {
		if s == excluding {
			continue
		}
		if err := s.deliver(text); err != nil {
			failed = append(failed, s)
		}
	}
	r.teardownLocked(failed)
}

// teardownLocked closes sessions whose writes failed during routing. All of
// them stop receiving before any leave notice goes out. Each removal may
// broadcast again, which can fail further sessions in turn.
func (r *Router) teardownLocked(failed []*Session) {
	for _, s := range failed {
		s.active.Store(false)
	}
	for _, s := range failed {
		s.closeWith(r.removeLocked)
	}
}

// PrivateSend delivers text from sender to the first session whose username
// matches to, ignoring case, and echoes it back to the sender. It reports
// whether a recipient was found.
func (r *Router) PrivateSend(sender *Session, to, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, receiver := range r.sessions {
		if !strings.EqualFold(receiver.username, to) {
			continue
		}

		var failed []*Session
		if err := receiver.deliver("[PM from " + sender.username + "] " + text); err != nil {
			failed = append(failed, receiver)
		}
		if err := sender.deliver("[PM to " + to + "] " + text); err != nil && sender != receiver {
			failed = append(failed, sender)
		}

		r.logger.Info("private message", "from", sender.username, "to", to, "text", text)
		r.metrics.PrivateMessages.WithLabelValues(metrics.ResultDelivered).Inc()
		r.teardownLocked(failed)
		return true
	}

	r.metrics.PrivateMessages.WithLabelValues(metrics.ResultNotFound).Inc()
	return false
}

// ListUsers joins the registered usernames in join order with ", ".
func (r *Router) ListUsers() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.sessions))
	for i, s := range r.sessions {
		names[i] = s.username
	}
	return strings.Join(names, ", ")
}

// Len returns the number of registered sessions.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
