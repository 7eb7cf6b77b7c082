package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	clientConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_connection_state",
			Help: "Current transport state (0 disconnected, 1 connecting, 2 connected, 3 lost).",
		},
	)
	clientReconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_reconnect_attempts_total",
			Help: "Reconnect attempts made by the transport, by outcome.",
		},
		[]string{"outcome"},
	)
	clientFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_frames_total",
			Help: "Inbound room frames by event kind and result.",
		},
		[]string{"kind", "result"},
	)
	clientPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_publish_failures_total",
			Help: "Publishes that could not be delivered to the broker.",
		},
		[]string{"reason"},
	)
	clientAPIRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_api_request_duration_seconds",
			Help:    "REST call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_devserver_http_requests_total",
			Help: "Total number of HTTP requests processed by the dev server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_devserver_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_devserver_ws_active_connections",
			Help: "Number of active STOMP websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_devserver_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_devserver_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		clientConnectionState,
		clientReconnectAttempts,
		clientFramesTotal,
		clientPublishFailures,
		clientAPIRequests,
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
	)
}

func SetConnectionState(state int) {
	clientConnectionState.Set(float64(state))
}

func IncReconnectAttempt(outcome string) {
	clientReconnectAttempts.WithLabelValues(outcome).Inc()
}

func IncFrame(kind, result string) {
	clientFramesTotal.WithLabelValues(kind, result).Inc()
}

func IncPublishFailure(reason string) {
	clientPublishFailures.WithLabelValues(reason).Inc()
}

func ObserveAPIRequest(operation string, status int, started time.Time) {
	clientAPIRequests.WithLabelValues(operation, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
