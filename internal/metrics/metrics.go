package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_http_requests_total",
			Help: "HTTP requests by method and final status",
		},
		[]string{"method", "status"},
	)
	HTTPDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "frontend_http_request_duration_seconds",
			Help:    "Latency of front end requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
	SecurityRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_security_rejections_total",
			Help: "Requests rejected by the security pipeline",
		},
		[]string{"reason"},
	)
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_backend_requests_total",
			Help: "Backend API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frontend_backend_duration_seconds",
			Help:    "Latency of backend API calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)
	AuthTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_auth_transitions_total",
			Help: "Login state machine transitions",
		},
		[]string{"transition", "result"},
	)
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frontend_backend_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"backend"},
	)
	CircuitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_backend_circuit_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"backend", "from", "to"},
	)
	CircuitHalfOpenProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_backend_circuit_half_open_probes_total",
			Help: "Probe requests allowed while half-open",
		},
		[]string{"backend"},
	)
	RateLimiterKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "frontend_rate_limiter_keys",
			Help: "Client keys currently tracked by the in-memory rate limiter",
		},
	)
	BuildInfo = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "frontend_build_info",
			Help:        "Build info gauge with const labels",
			ConstLabels: prometheus.Labels{"version": "0.1.0"},
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		HTTPRequests, HTTPDuration, SecurityRejections,
		BackendRequests, BackendDuration, AuthTransitions,
		CircuitState, CircuitTransitions, CircuitHalfOpenProbes,
		RateLimiterKeys, BuildInfo,
	)
	BuildInfo.Set(1)
}
