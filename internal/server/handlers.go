// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/transport"
)

// Handlers serves the HTTP endpoints backed by a chat router.
type Handlers struct {
	router       *chat.Router
	upgrader     websocket.Upgrader
	maxLineBytes int
	writeTimeout time.Duration
	logger       *slog.Logger
}

// HandlerConfig carries the transport limits applied to WebSocket sessions.
type HandlerConfig struct {
	Origins      *OriginPolicy
	MaxLineBytes int
	WriteTimeout time.Duration
}

// NewHandlers creates handlers that join WebSocket clients to router.
func NewHandlers(router *chat.Router, cfg HandlerConfig, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Origins == nil {
		cfg.Origins = NewOriginPolicy(nil, logger)
	}

	return &Handlers{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.Origins.CheckOrigin,
		},
		maxLineBytes: cfg.MaxLineBytes,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
	}
}

// WebSocket upgrades the request and runs a chat session over it. Each text
// frame is one protocol line, starting with the username. The handler
// returns when the session ends.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	h.logger.Info("client connected", "remote", r.RemoteAddr, "transport", "websocket")

	line := transport.NewWebSocket(conn, r.RemoteAddr, h.maxLineBytes, h.writeTimeout)
	if err := h.router.Join(line); err != nil {
		h.logger.Warn("handshake failed", "remote", r.RemoteAddr, "error", err)
	}
}

// Health reports liveness and the number of connected sessions.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "linechat server is running! %d users online\n", h.router.Len())
}

// TestPage serves a minimal browser client for the WebSocket endpoint.
func (h *Handlers) TestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		h.logger.Warn("error writing HTML response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>linechat WebSocket Test</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        input[type="text"] { width: 400px; padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>linechat</h1>
    <div>
        <input type="text" id="input" placeholder="Username, then messages, /msg &quot;user&quot; text, /list, /exit">
        <button id="connect" onclick="toggle()">Connect</button>
    </div>
    <div id="messages"></div>
    <script>
        let ws = null;
        const messages = document.getElementById('messages');
        const input = document.getElementById('input');
        const button = document.getElementById('connect');

        function show(text) {
            const line = document.createElement('div');
            line.textContent = text;
            messages.appendChild(line);
            messages.scrollTop = messages.scrollHeight;
        }

        function toggle() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            ws.onopen = function() { show('Connected. Enter your username first.'); button.textContent = 'Disconnect'; };
            ws.onmessage = function(event) { show(event.data); };
            ws.onclose = function() { show('Disconnected.'); button.textContent = 'Connect'; ws = null; };
        }

        input.addEventListener('keypress', function(e) {
            if (e.key === 'Enter' && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(input.value);
                show('> ' + input.value);
                input.value = '';
            }
        });
    </script>
</body>
</html>`
