package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `route="/api/campaigns/{id}"`)
	assert.Contains(t, body, `status="418"`)
	assert.False(t, strings.Contains(body, `route="/api/campaigns/abc"`))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(EmailsSent.WithLabelValues("noop", "sent"))
	EmailsSent.WithLabelValues("noop", "sent").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(EmailsSent.WithLabelValues("noop", "sent")))
}
