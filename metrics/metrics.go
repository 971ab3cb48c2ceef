// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "ledgemail"

var (
	// Request metrics
	APIRequestCounter        *prometheus.CounterVec
	APIErrorCounter          *prometheus.CounterVec
	RequestDurationHistogram *prometheus.HistogramVec

	// Domain metrics
	EmailSendCounter    *prometheus.CounterVec
	WebhookEventCounter *prometheus.CounterVec
)

// InitMetrics initializes all Prometheus metrics
func InitMetrics() {
	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path"},
	)

	APIErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API responses with status >= 400",
		},
		[]string{"method", "path", "status"},
	)

	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	EmailSendCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_sends_total",
			Help:      "Email send attempts by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	WebhookEventCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Whop webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)
}

// RecordSend increments the send counter; outcome is one of
// sent, denied, failed.
func RecordSend(emailType, outcome string) {
	if EmailSendCounter == nil {
		return
	}
	EmailSendCounter.WithLabelValues(emailType, outcome).Inc()
}

// RecordWebhookEvent increments the webhook counter; outcome is one of
// processed, ignored, failed, rejected.
func RecordWebhookEvent(eventType, outcome string) {
	if WebhookEventCounter == nil {
		return
	}
	WebhookEventCounter.WithLabelValues(eventType, outcome).Inc()
}

// Middleware tracks request counts and durations per route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if APIRequestCounter == nil {
			return c.Next()
		}

		start := time.Now()
		// Use the route pattern, not the raw URL, to keep cardinality down.
		err := c.Next()

		method := c.Method()
		path := c.Route().Path
		status := strconv.Itoa(c.Response().StatusCode())

		APIRequestCounter.WithLabelValues(method, path).Inc()
		RequestDurationHistogram.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		if c.Response().StatusCode() >= 400 {
			APIErrorCounter.WithLabelValues(method, path, status).Inc()
		}

		return err
	}
}

// Handler serves the /metrics endpoint. promhttp is net/http based, so it
// is bridged onto fiber's fasthttp context.
func Handler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
