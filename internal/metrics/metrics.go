// Package metrics holds the prometheus collectors of the chat server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the request and domain collectors.
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Messages        *prometheus.CounterVec
	FriendRequests  *prometheus.CounterVec
	RoomsCreated    *prometheus.CounterVec
	Streams         prometheus.Gauge
}

// New registers every collector on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panda_chat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "panda_chat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panda_chat",
			Name:      "messages_total",
			Help:      "Message log changes by operation.",
		}, []string{"op"}),
		FriendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panda_chat",
			Name:      "friend_requests_total",
			Help:      "Friend request transitions by outcome.",
		}, []string{"outcome"}),
		RoomsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panda_chat",
			Name:      "rooms_created_total",
			Help:      "Rooms created by type.",
		}, []string{"type"}),
		Streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "panda_chat",
			Name:      "open_streams",
			Help:      "Server-sent event streams currently open.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests, m.RequestDuration, m.Messages, m.FriendRequests, m.RoomsCreated, m.Streams,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts and times every request under its route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
