package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRouteTemplate(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/admin/patient/:id/profile", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/admin/patient/:id/profile", "200"))

	for _, id := range []string{"P-1", "P-2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/patient/"+id+"/profile", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/admin/patient/:id/profile", "200"))
	assert.Equal(t, float64(2), after-before, "requests counted under the route template")
}

func TestRecordExport(t *testing.T) {
	before := testutil.ToFloat64(exportsTotal.WithLabelValues("single", "zip", "failure"))
	RecordExport("single", "zip", false, 20*time.Millisecond)
	after := testutil.ToFloat64(exportsTotal.WithLabelValues("single", "zip", "failure"))
	assert.Equal(t, float64(1), after-before)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordTranscode(true)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "intake_transcodes_total")
}
