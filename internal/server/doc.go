// Package server implements the HTTP surface of the chat server: a health
// check, a WebSocket endpoint that feeds the same chat router as the TCP
// listener, a browser test page, and Prometheus metrics.
package server
