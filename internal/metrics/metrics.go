// Package metrics exposes Prometheus collectors for the gateway service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signupsTotal               *prometheus.CounterVec
	fallbackWritesTotal        prometheus.Counter
	notifyFailuresTotal        *prometheus.CounterVec
	proxyRequestsTotal         *prometheus.CounterVec
	proxyDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		signupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgate_signups_total",
				Help: "Total signup capture attempts, labeled by pipeline outcome.",
			},
			[]string{"outcome"},
		)

		fallbackWritesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadgate_fallback_writes_total",
				Help: "Total signup records written to the local fallback store.",
			},
		)

		notifyFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgate_notify_failures_total",
				Help: "Total notification failures, labeled by kind (admin, ack).",
			},
			[]string{"kind"},
		)

		proxyRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgate_proxy_requests_total",
				Help: "Total forwarded downstream calls, labeled by route and classification.",
			},
			[]string{"route", "classification"},
		)

		proxyDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadgate_proxy_duration_seconds",
				Help:    "Histogram of downstream call latencies, labeled by route.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 300},
			},
			[]string{"route"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSignup increments the signup counter for a pipeline outcome.
func ObserveSignup(outcome string) {
	Init()
	signupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFallbackWrite increments the fallback write counter.
func ObserveFallbackWrite() {
	Init()
	fallbackWritesTotal.Inc()
}

// ObserveNotifyFailure increments the notification failure counter.
func ObserveNotifyFailure(kind string) {
	Init()
	notifyFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveProxy records one forwarded call with its classification and
// elapsed time.
func ObserveProxy(route, classification string, duration time.Duration) {
	Init()
	proxyRequestsTotal.WithLabelValues(route, classification).Inc()
	proxyDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
