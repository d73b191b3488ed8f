package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute метка для статики и неизвестных путей, чтобы не плодить серии
const unmatchedRoute = "unmatched"

// PrometheusMiddleware HTTP-метрики сервиса для Gin:
//
//	<service>_http_request_duration_seconds{method,path,status}
//	<service>_http_requests_inflight
//	<service>_http_request_errors_total{method,path,status}   (4xx/5xx)
//	<service>_http_response_size_bytes{path}                  (меши чанков бывают крупными)
//
// path это шаблон маршрута gin (/api/chunk/:x/:y/:z), а не сырой URL.
type PrometheusMiddleware struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	errors   *prometheus.CounterVec
	size     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewPrometheusMiddleware регистрирует метрики в reg, /metrics отдаёт gatherer.
// nil означает глобальные DefaultRegisterer/DefaultGatherer.
func NewPrometheusMiddleware(service string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *PrometheusMiddleware {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	labels := []string{"method", "path", "status"}
	pm := &PrometheusMiddleware{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность HTTP-запросов.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, labels),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Запросы в обработке.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_request_errors_total",
			Help:      "Запросы, завершившиеся статусом 4xx/5xx.",
		}, labels),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_response_size_bytes",
			Help:      "Размер тела ответа до сжатия.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MB
		}, []string{"path"}),
		gatherer: gatherer,
	}

	reg.MustRegister(pm.duration, pm.inflight, pm.errors, pm.size)
	return pm
}

// Handler middleware для router.Use
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pm.inflight.Inc()
		defer pm.inflight.Dec()

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		pm.duration.WithLabelValues(c.Request.Method, route, status).Observe(elapsed.Seconds())
		if code >= 400 {
			pm.errors.WithLabelValues(c.Request.Method, route, status).Inc()
		}
		if n := c.Writer.Size(); n > 0 {
			pm.size.WithLabelValues(route).Observe(float64(n))
		}
	}
}

// RegisterMetricsEndpoint добавляет GET /metrics
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(pm.gatherer, promhttp.HandlerOpts{})))
}
