package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/metrics"
)

const testOrigin = "http://localhost:8081"

func newTestServer(t *testing.T) (*httptest.Server, *chat.Router) {
	t.Helper()

	reg := prometheus.NewRegistry()
	router := chat.NewRouter(
		chat.WithLogger(quietLogger()),
		chat.WithMetrics(metrics.NewChatMetrics(reg)),
	)
	h := NewHandlers(router, HandlerConfig{
		Origins:      NewOriginPolicy([]string{testOrigin}, quietLogger()),
		MaxLineBytes: 1024,
		WriteTimeout: time.Second,
	}, quietLogger())

	srv := httptest.NewServer(SetupRoutes(h, reg))
	t.Cleanup(srv.Close)
	return srv, router
}

func dialWS(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readLine(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func sendLine(t *testing.T, conn *websocket.Conn, line string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

// TestHealthHandler verifies the plain-text health response.
func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "linechat server is running! 0 users online\n", string(body))
}

// TestTestPageHandler verifies that the browser client is served as HTML.
func TestTestPageHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/test")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "new WebSocket(")
}

// TestMetricsEndpoint verifies that router collectors are exposed.
func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "linechat_sessions_active 0")
}

// TestWebSocketHandlerRejectsPost verifies the GET-only restriction.
func TestWebSocketHandlerRejectsPost(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/ws", "text/plain", strings.NewReader("alice"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestWebSocketHandlerRejectsOrigin verifies that disallowed browser origins are refused.
func TestWebSocketHandlerRejectsOrigin(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp, err := dialWS(t, srv, "https://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// TestWebSocketConversation verifies that WebSocket clients speak the same
// line protocol as TCP clients.
func TestWebSocketConversation(t *testing.T) {
	srv, router := newTestServer(t)

	alice, _, err := dialWS(t, srv, testOrigin)
	require.NoError(t, err)
	sendLine(t, alice, "alice")
	require.Eventually(t, func() bool { return router.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	bob, _, err := dialWS(t, srv, "")
	require.NoError(t, err)
	sendLine(t, bob, "bob")
	assert.Equal(t, "bob has joined the chat.", readLine(t, alice))

	sendLine(t, alice, "hello bob")
	assert.Equal(t, "alice: hello bob", readLine(t, bob))

	sendLine(t, bob, `/msg "alice" hi`)
	assert.Equal(t, "[PM from bob] hi", readLine(t, alice))
	assert.Equal(t, "[PM to alice] hi", readLine(t, bob))

	sendLine(t, bob, "/exit")
	assert.Equal(t, "bob has left the chat.", readLine(t, alice))
	require.Eventually(t, func() bool { return router.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
}
