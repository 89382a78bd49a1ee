// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowmail",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmail",
		Name:      "emails_total",
		Help:      "Campaign emails handed to the provider, by outcome.",
	}, []string{"provider", "outcome"})

	SubscribersSynced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowmail",
		Name:      "subscribers_synced_total",
		Help:      "Subscribers upserted from Whop membership syncs.",
	})

	CheckoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmail",
		Name:      "checkout_sessions_total",
		Help:      "Checkout session requests by plan and outcome.",
	}, []string{"plan", "outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request latency keyed by the matched chi route pattern
// so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
