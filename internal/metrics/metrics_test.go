package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry("arcadia", reg, reg)
}

func TestRecorders(t *testing.T) {
	m := newTestMetrics()

	m.RecordLogin(LoginSuccess)
	m.RecordLogin(LoginInvalid)
	m.RecordLogin(LoginInvalid)
	m.RecordLockout()
	m.RecordMFAVerification("totp", true)
	m.RecordMFAVerification("email", false)
	m.RecordPasswordChange("reset")
	m.RecordEmail("login_otp", errors.New("ses down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues(LoginSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues(LoginInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockoutsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MFAVerificationsTotal.WithLabelValues("totp", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MFAVerificationsTotal.WithLabelValues("email", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PasswordChangesTotal.WithLabelValues("reset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSentTotal.WithLabelValues("login_otp", "failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordLogin(LoginLocked)
	m.RecordLockout()
	m.RecordEmail("x", nil)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := newTestMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Post("/admin/accounts/{id}/ban", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"a1", "a2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/accounts/"+id+"/ban", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/admin/accounts/{id}/ban", "204")))
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := newTestMetrics()
	m.RecordLockout()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "arcadia_account_lockouts_total 1"))
}
