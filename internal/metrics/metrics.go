// Package metrics exposes Prometheus collectors for the chat router.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linechat"

// Private message results.
const (
	ResultDelivered = "delivered"
	ResultNotFound  = "not_found"
)

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ChatMetrics holds the router's collectors.
type ChatMetrics struct {
	ActiveSessions   prometheus.Gauge
	Broadcasts       prometheus.Counter
	PrivateMessages  *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
}

// NewChatMetrics creates and registers chat collectors on reg.
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently registered with the router.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast operations, including join and leave notices.",
		}),
		PrivateMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "private_messages_total",
			Help:      "Total number of private message attempts by result.",
		}, []string{"result"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of line writes that failed and tore down the recipient session.",
		}),
	}

	reg.MustRegister(m.ActiveSessions, m.Broadcasts, m.PrivateMessages, m.DeliveryFailures)
	return m
}
