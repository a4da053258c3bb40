// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a WebSocket session.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *slog.Logger
}

// NewOriginPolicy builds a policy from origins; "*" allows any origin.
// Entries that are not scheme://host URLs are logged and skipped.
func NewOriginPolicy(origins []string, logger *slog.Logger) *OriginPolicy {
	if logger == nil {
		logger = slog.Default()
	}

	p := &OriginPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}
	for _, raw := range origins {
		switch entry := strings.TrimSpace(raw); entry {
		case "":
		case "*":
			p.allowAll = true
		default:
			key, ok := originKey(entry)
			if !ok {
				logger.Warn("ignoring invalid origin in configuration", "origin", raw)
				continue
			}
			p.allowed[key] = struct{}{}
		}
	}
	return p
}

// originKey lowercases scheme and host so lookups ignore case.
func originKey(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

// Allowed reports whether the request's Origin header passes the policy.
// Requests without an Origin header come from non-browser clients and are allowed.
func (p *OriginPolicy) Allowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.allowAll {
		return true
	}

	key, ok := originKey(origin)
	if !ok {
		return false
	}
	_, exists := p.allowed[key]
	return exists
}

// CheckOrigin is a websocket.Upgrader CheckOrigin callback.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	if p.Allowed(r) {
		return true
	}

	p.logger.Warn("blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
