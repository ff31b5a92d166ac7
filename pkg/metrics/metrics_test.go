package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUse_ReturnsSingleton(t *testing.T) {
	t.Parallel()

	assert.Same(t, Use(), Use())
}

func TestPrometheusController_ServesMetrics(t *testing.T) {
	t.Parallel()

	Use().GenerationTotal.WithLabelValues("stub", "ok").Inc()

	c := NewPrometheusController("")
	assert.Equal(t, "/debug/prometheus", c.Key())

	r := mux.NewRouter()
	c.Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/prometheus", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "generation_requests_total")
	assert.GreaterOrEqual(t, testutil.ToFloat64(Use().GenerationTotal.WithLabelValues("stub", "ok")), float64(1))
}
