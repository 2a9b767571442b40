package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/crm/internal/auth/metrics"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.LoginAttempt("success")
		m.Refresh("success")
		m.Logout()
		m.GateDecision("admin", "forbidden")
		m.GuardRejection("last_admin")
		m.ExpiredCredentialsDeleted(3)
		m.RateLimited("strict")
	})

	h := m.Instrument(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCountersAndHandler(t *testing.T) {
	m := metrics.New()
	m.LoginAttempt("success")
	m.LoginAttempt("success")
	m.LoginAttempt("invalid_credentials")
	m.GateDecision("admin", "forbidden")

	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `auth_logins_total{outcome="success"} 2`)
	require.Contains(t, body, `auth_logins_total{outcome="invalid_credentials"} 1`)
	require.Contains(t, body, `auth_gate_decisions_total{decision="forbidden",policy="admin"} 1`)
	require.Contains(t, body, `auth_http_requests_total{method="POST",status="201"} 1`)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var series int
	for _, mf := range families {
		if mf.GetName() == "auth_logins_total" {
			series = len(mf.GetMetric())
		}
	}
	require.Equal(t, 2, series)
}
