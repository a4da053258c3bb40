package chat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/linechat/internal/transport"
)

// Session is the server side of one connected client.
type Session struct {
	id       uuid.UUID
	router   *Router
	conn     transport.Conn
	username string
	logger   *slog.Logger
	limiter  *rate.Limiter

	active  atomic.Bool
	closing atomic.Bool
}

func newSession(r *Router, conn transport.Conn, username string) *Session {
	id := uuid.New()
	s := &Session{
		id:       id,
		router:   r,
		conn:     conn,
		username: username,
		logger: r.logger.With(
			"session_id", id.String(),
			"user", username,
			"remote", conn.RemoteAddr(),
		),
	}
	if r.rateBurst > 0 {
		every := r.rateInterval / time.Duration(r.rateBurst)
		s.limiter = rate.NewLimiter(rate.Every(every), r.rateBurst)
	}
	s.active.Store(true)
	return s
}

// ID returns the session's log identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Username returns the name resolved at handshake.
func (s *Session) Username() string {
	return s.username
}

// Active reports whether the session has not been torn down.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Send writes one line to the client. It does nothing once the session is
// inactive, and a failed write tears the session down.
func (s *Session) Send(line string) {
	if err := s.deliver(line); err != nil {
		s.Close()
	}
}

// deliver writes line without tearing down on failure. The router calls it
// while holding its lock and handles failures itself.
func (s *Session) deliver(line string) error {
	if !s.Active() {
		return nil
	}
	if err := s.conn.WriteLine(line); err != nil {
		s.logger.Warn("send failed", "error", err)
		s.router.metrics.DeliveryFailures.Inc()
		return fmt.Errorf("deliver to %s: %w", s.username, err)
	}
	return nil
}

// Close tears the session down: it leaves the roster with a leave notice and
// releases the transport. Only the first call has any effect.
func (s *Session) Close() {
	s.closeWith(s.router.Remove)
}

// closeWith runs teardown with remove as the roster step, so the router can
// tear down sessions while it already holds its lock. The first caller claims
// the teardown; later callers return at once without waiting for it.
func (s *Session) closeWith(remove func(*Session)) {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	s.active.Store(false)
	remove(s)
	if err := s.conn.Close(); err != nil && !transport.IsExpectedCloseError(err) {
		s.logger.Warn("error closing connection", "error", err)
	}
}

// run reads lines until /exit, EOF or a read error, then tears down.
func (s *Session) run() {
	defer s.Close()

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadError(err)
			return
		}
		if !s.handle(line) {
			return
		}
	}
}

func (s *Session) logReadError(err error) {
	if !s.Active() {
		return
	}
	if errors.Is(err, io.EOF) {
		s.logger.Info("client closed connection")
		return
	}
	s.logger.Warn("read failed", "error", err)
}

// handle processes one inbound line and reports whether to keep reading.
func (s *Session) handle(line string) bool {
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.EqualFold(trimmed, CommandExit):
		s.logger.Info("client requested exit")
		return false
	case strings.HasPrefix(line, CommandMsg):
		if s.allow() {
			s.handlePrivateMessage(line)
		}
	case strings.EqualFold(trimmed, CommandList):
		s.Send(noticeOnlineUsers + s.router.ListUsers())
	case trimmed != "":
		if s.allow() {
			s.router.Broadcast(s.username+": "+line, s)
		}
	}

	return s.Active()
}

func (s *Session) handlePrivateMessage(line string) {
	pm, err := ParsePrivateMessage(line)
	if err != nil {
		s.logger.Debug("rejected private message", "error", err)
		s.Send(parseErrorNotice(err))
		return
	}

	if !s.router.PrivateSend(s, pm.To, pm.Text) {
		s.Send(fmt.Sprintf(noticeNotOnline, pm.To))
	}
}

// allow applies flood control, telling the client when a line is dropped.
func (s *Session) allow() bool {
	if s.limiter == nil || s.limiter.AllowN(s.router.clock.Now(), 1) {
		return true
	}
	s.logger.Debug("rate limit exceeded", "burst", s.router.rateBurst, "interval", s.router.rateInterval)
	s.Send(noticeTooFast)
	return false
}
