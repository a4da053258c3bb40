// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/linechat/internal/metrics"
)

// SetupRoutes configures a ServeMux with the health check, WebSocket
// endpoint, test page, and, when reg is non-nil, Prometheus metrics.
func SetupRoutes(h *Handlers, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Health)
	mux.HandleFunc("/ws", h.WebSocket)
	mux.HandleFunc("/test", h.TestPage)
	if reg != nil {
		mux.Handle("/metrics", metrics.Handler(reg))
	}
	return mux
}
