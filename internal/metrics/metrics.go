// Package metrics exposes Prometheus collectors for the HTTP API and the
// application workflow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"soul-card-backend/internal/apperr"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soulcard"

var (
	applicationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "application_actions_total",
		Help:      "Application submissions and transitions by action and outcome",
	}, []string{"action", "outcome"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Open websocket connections",
	})

	pushNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_notifications_total",
		Help:      "APNs push attempts by result",
	}, []string{"result"})
)

// RecordAction counts one application action. The outcome is "ok" or the
// error kind.
func RecordAction(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	applicationActions.WithLabelValues(action, outcome).Inc()
}

// WSConnected tracks websocket connections opening (+1) and closing (-1)
func WSConnected(delta float64) {
	wsConnections.Add(delta)
}

// RecordPush counts one push attempt
func RecordPush(result string) {
	pushNotifications.WithLabelValues(result).Inc()
}

// Middleware observes request latency labelled by the chi route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
