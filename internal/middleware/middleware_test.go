package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMiddleware_BasicMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	promMw := NewPrometheusMiddleware("test", registry, registry)
	r.Use(promMw.Handler())

	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	r.GET("/error", func(c *gin.Context) {
		c.JSON(500, gin.H{"error": "test error"})
	})

	for _, path := range []string{"/test", "/error"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
	}

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	var durationFound, errorsFound, sizeFound bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "test_http_request_duration_seconds":
			durationFound = true
			assert.Equal(t, "Длительность HTTP-запросов.", mf.GetHelp())
			assert.Len(t, mf.Metric, 2)
		case "test_http_request_errors_total":
			errorsFound = true
			require.Len(t, mf.Metric, 1)
			assert.Equal(t, float64(1), mf.Metric[0].GetCounter().GetValue())
		case "test_http_response_size_bytes":
			sizeFound = true
			assert.Len(t, mf.Metric, 2)
		}
	}

	assert.True(t, durationFound, "Duration metric not found")
	assert.True(t, errorsFound, "Errors metric not found")
	assert.True(t, sizeFound, "Response size metric not found")
}

func TestPrometheusMiddleware_InflightRequests(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	promMw := NewPrometheusMiddleware("test", registry, registry)
	r.Use(promMw.Handler())

	entered := make(chan struct{})
	release := make(chan struct{})
	r.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.JSON(200, gin.H{"ok": true})
	})

	done := make(chan struct{})
	go func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/slow", nil)
		r.ServeHTTP(w, req)
		close(done)
	}()

	inflight := func() float64 {
		mfs, err := registry.Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			if mf.GetName() == "test_http_requests_inflight" {
				return mf.Metric[0].GetGauge().GetValue()
			}
		}
		t.Fatal("Inflight metric not found")
		return 0
	}

	<-entered
	assert.Equal(t, float64(1), inflight())

	close(release)
	<-done
	assert.Equal(t, float64(0), inflight())
}

func TestPrometheusMiddleware_UnmatchedPathsShareLabel(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewPrometheusMiddleware("test", registry, registry).Handler())

	for _, path := range []string{"/a.js", "/b.css", "/c/d.png"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
	}

	mfs, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "test_http_request_duration_seconds" {
			assert.Len(t, mf.Metric, 1)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	promMw := NewPrometheusMiddleware("svc", registry, registry)
	r.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(r)

	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "svc_http_request_duration_seconds")
}

func TestRequestLogger_TraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	loggerMw := NewRequestLogger(logging.NewWriterLogger("http", &buf, logging.DEBUG))
	r.Use(loggerMw.Handler())

	var capturedTraceID string
	r.GET("/test", func(c *gin.Context) {
		traceID, exists := c.Get("trace_id")
		require.True(t, exists, "trace_id should be set in context")
		capturedTraceID = traceID.(string)
		c.JSON(200, gin.H{"trace_id": capturedTraceID})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.NotEmpty(t, capturedTraceID)
	assert.Equal(t, capturedTraceID, w.Header().Get(TraceHeader))

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] [http] [HTTP] ▶ GET /test")
	assert.Contains(t, out, "[INFO] [http] [HTTP] ◀ GET /test 200")
	assert.Contains(t, out, "trace="+capturedTraceID)
}

func TestRequestLogger_UniqueTraceIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRequestLogger(logging.NewWriterLogger("http", &bytes.Buffer{}, logging.ERROR)).Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(204) })

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/x", nil)
		r.ServeHTTP(w, req)
		id := w.Header().Get(TraceHeader)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestRequestLogger_ClientTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRequestLogger(logging.NewWriterLogger("http", &bytes.Buffer{}, logging.ERROR)).Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(204) })

	cases := []struct {
		name   string
		header string
		echoed bool
	}{
		{"valid", "client-req-42", true},
		{"bad chars", "id with spaces", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/x", nil)
			req.Header.Set(TraceHeader, tc.header)
			r.ServeHTTP(w, req)

			got := w.Header().Get(TraceHeader)
			require.NotEmpty(t, got)
			if tc.echoed {
				assert.Equal(t, tc.header, got)
			} else {
				assert.NotEqual(t, tc.header, got)
			}
		})
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	r.Use(NewRequestLogger(logging.NewWriterLogger("http", &buf, logging.INFO)).Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(200) })
	r.GET("/missing", func(c *gin.Context) { c.Status(404) })
	r.GET("/boom", func(c *gin.Context) { c.Status(500) })

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
	}

	out := buf.String()
	assert.NotContains(t, out, "▶", "начало запроса пишется только на DEBUG")
	assert.Contains(t, out, "[INFO] [http] [HTTP] ◀ GET /ok 200")
	assert.Contains(t, out, "[WARN] [http] [HTTP] ◀ GET /missing 404")
	assert.Contains(t, out, "[ERROR] [http] [HTTP] ◀ GET /boom 500")
}
