package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	pushConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "push_connections",
			Help: "Currently registered push channel connections by role.",
		},
		[]string{"role"},
	)
	pushRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "push_handshake_rejections_total",
			Help: "Push channel handshakes refused for a missing or invalid credential.",
		},
	)
	framesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_frames_delivered_total",
			Help: "Frames queued to a connected client.",
		},
		[]string{"type"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_frames_dropped_total",
			Help: "Frames that could not be delivered.",
		},
		[]string{"type", "reason"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergency_transitions_total",
			Help: "Accepted emergency request lifecycle transitions.",
		},
		[]string{"to"},
	)
	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergency_rejections_total",
			Help: "Rejected emergency request operations by violated rule.",
		},
		[]string{"kind", "rule"},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpLatency,
			pushConnections, pushRejected, framesDelivered, framesDropped,
			transitions, rejections,
		)
	})
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count and latency by chi route pattern
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(lrw.statusCode)).Inc()
		httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func ConnectionOpened(role string) {
	pushConnections.WithLabelValues(role).Inc()
}

func ConnectionClosed(role string) {
	pushConnections.WithLabelValues(role).Dec()
}

func HandshakeRejected() {
	pushRejected.Inc()
}

func FrameDelivered(frameType string) {
	framesDelivered.WithLabelValues(frameType).Inc()
}

func FrameDropped(frameType, reason string) {
	framesDropped.WithLabelValues(frameType, reason).Inc()
}

func Transition(to string) {
	transitions.WithLabelValues(to).Inc()
}

func Rejection(kind, rule string) {
	rejections.WithLabelValues(kind, rule).Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets websocket upgrades pass through the instrumentation
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
