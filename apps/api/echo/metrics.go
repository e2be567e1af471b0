package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "academia"

// metrics holds the collectors of one Server, registered on their own registry.
type metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	authFailures *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	logins       *prometheus.CounterVec
	invitations  *prometheus.CounterVec
	activations  prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_failures_total",
			Help:      "Rejected authentications by mode.",
		}, []string{"mode"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter, by route.",
		}, []string{"route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "staff_invitations_total",
			Help:      "Staff invitation transitions by action.",
		}, []string{"action"}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "profile_activations_total",
			Help:      "Profiles activated through a setup link.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.authFailures,
		m.rateLimited,
		m.logins,
		m.invitations,
		m.activations,
	)
	return m
}

func (m *metrics) handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// middleware records every request. Errors are handed to the HTTPErrorHandler first so that the final status is known.
func (m *metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			timer := prometheus.NewTimer(m.latency.WithLabelValues(routeLabel(ctx)))
			defer timer.ObserveDuration()

			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			m.requests.WithLabelValues(
				ctx.Request().Method,
				routeLabel(ctx),
				strconv.Itoa(ctx.Response().Status),
			).Inc()
			return nil
		}
	}
}

// routeLabel keeps the label cardinality bounded: unmatched paths share one value.
func routeLabel(ctx echo.Context) string {
	if p := ctx.Path(); p != "" {
		return p
	}
	return http.StatusText(http.StatusNotFound)
}
