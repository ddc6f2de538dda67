// Package metrics provides Prometheus metrics for the docshelf server.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docshelf_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	documentBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docshelf_document_bytes_uploaded_total",
			Help: "Total bytes of uploaded document content",
		},
	)

	documentUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_document_uploads_total",
			Help: "Total number of document uploads",
		},
		[]string{"status"},
	)

	foldersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docshelf_folders_created_total",
			Help: "Total number of folders created",
		},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_auth_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"result"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docshelf_active_sessions",
			Help: "Number of signed-in web sessions",
		},
	)

	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docshelf_ws_connections_active",
			Help: "Number of open notification websockets",
		},
	)

	blobOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docshelf_blob_operation_duration_seconds",
			Help:    "Blob store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	blobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_blob_operations_total",
			Help: "Total blob store operations",
		},
		[]string{"backend", "operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDocumentUpload records a document upload.
func RecordDocumentUpload(bytes int64, success bool) {
	documentBytesUploaded.Add(float64(bytes))
	documentUploadsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordFolderCreated counts a created folder.
func RecordFolderCreated() {
	foldersCreatedTotal.Inc()
}

// RecordAuthAttempt records a login attempt.
func RecordAuthAttempt(success bool) {
	authAttemptsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// SetActiveSessions sets the number of signed-in sessions.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// SetWSConnectionsActive sets the number of open websockets.
func SetWSConnectionsActive(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordBlobOperation records a blob store operation.
func RecordBlobOperation(backend, operation string, duration time.Duration, success bool) {
	blobOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	blobOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Middleware records request metrics. Route patterns are used as the path
// label so ids do not explode cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if sc, ok := err.(interface{ StatusCode() int }); ok {
					status = sc.StatusCode()
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			RecordHTTPRequest(c.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}
