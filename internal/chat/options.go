package chat

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tyrowin/linechat/internal/metrics"
	"github.com/Tyrowin/linechat/internal/transport"
)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used by the router and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the collectors updated by the router.
func WithMetrics(m *metrics.ChatMetrics) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock replaces the clock driving flood control.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Router) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRateLimit allows each session burst chat lines per interval.
// A burst of zero disables flood control.
func WithRateLimit(burst int, interval time.Duration) Option {
	return func(r *Router) {
		if burst <= 0 || interval <= 0 {
			r.rateBurst = 0
			return
		}
		r.rateBurst = burst
		r.rateInterval = interval
	}
}

// WithHandshakeTimeout bounds the wait for a client's username line. Zero waits forever.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d >= 0 {
			r.handshakeTimeout = d
		}
	}
}

// WithTCPOptions sets the options applied to connections accepted by Serve.
func WithTCPOptions(opts ...transport.TCPOption) Option {
	return func(r *Router) {
		r.tcpOptions = append(r.tcpOptions, opts...)
	}
}
