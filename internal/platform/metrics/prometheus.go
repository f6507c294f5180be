package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intake_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Export pipeline metrics
	exportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_exports_total",
			Help: "Total number of export requests by kind, format and outcome",
		},
		[]string{"kind", "format", "outcome"},
	)

	exportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_export_duration_seconds",
			Help:    "Export duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	exportReportStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_export_report_status_total",
			Help: "Report documents produced by status (full, fallback, unavailable)",
		},
		[]string{"status"},
	)

	transcodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_transcodes_total",
			Help: "Audio transcode invocations by outcome",
		},
		[]string{"outcome"},
	)

	recordingsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_recordings_skipped_total",
			Help: "Recordings left out of an export, by reason",
		},
		[]string{"reason"},
	)

	formSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_form_submissions_total",
			Help: "Clinical form submissions by form and outcome",
		},
		[]string{"form", "outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latencies. The route template
// (c.Path()) is used as the label so path parameters do not explode
// cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordExport records a finished export.
func RecordExport(kind, format string, ok bool, duration time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	exportsTotal.WithLabelValues(kind, format, outcome).Inc()
	exportDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordReportStatus records which report variant an export produced.
func RecordReportStatus(status string) {
	exportReportStatus.WithLabelValues(status).Inc()
}

// RecordTranscode records a transcoder invocation.
func RecordTranscode(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	transcodesTotal.WithLabelValues(outcome).Inc()
}

// RecordSkippedRecording records a recording that was left out of an export.
func RecordSkippedRecording(reason string) {
	recordingsSkipped.WithLabelValues(reason).Inc()
}

// RecordFormSubmission records a clinical form submission.
func RecordFormSubmission(form string, ok bool) {
	outcome := "accepted"
	if !ok {
		outcome = "rejected"
	}
	formSubmissions.WithLabelValues(form, outcome).Inc()
}
