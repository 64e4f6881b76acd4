package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Execution(OutcomeNavigated)
	m.Execution(OutcomeNavigated)
	m.Execution(OutcomeGate)
	m.Panic()
	m.Refresh(RefreshOK, 3)
	m.Refresh(RefreshCache, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Executions.WithLabelValues(OutcomeNavigated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(OutcomeGate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerPanics))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues(RefreshCache)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sites))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Execution(OutcomeFailed)
		m.Panic()
		m.Refresh(RefreshFailed, 0)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.Execution(OutcomeNavigated)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `siterelay_executions_total{outcome="navigated"} 1`)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Panic()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.HandlerPanics))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.HandlerPanics))
}
