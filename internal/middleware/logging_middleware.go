package middleware

import (
	"time"

	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader заголовок с trace-ID запроса. Клиент может прислать свой,
// сервер всегда возвращает итоговый.
const TraceHeader = "X-Trace-ID"

// TraceIDKey ключ trace-ID в gin.Context
const TraceIDKey = "trace_id"

const maxClientTraceID = 64

// RequestLogger присваивает запросу trace-ID и пишет строки ▶ (начало, DEBUG)
// и ◀ (итог: INFO, 4xx WARN, 5xx ERROR). Клиент опрашивает чанки десятками,
// поэтому начало запроса видно только на DEBUG.
type RequestLogger struct {
	logger *logging.Logger
}

// NewRequestLogger создаёт middleware; nil: глобальный логгер пакета logging
func NewRequestLogger(logger *logging.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := requestTraceID(c)
		c.Set(TraceIDKey, traceID)
		c.Header(TraceHeader, traceID)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		method := c.Request.Method

		rl.write(logging.DEBUG, "[HTTP] ▶ %s %s ip=%s trace=%s", method, route, c.ClientIP(), traceID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := logging.INFO
		switch {
		case status >= 500:
			level = logging.ERROR
		case status >= 400:
			level = logging.WARN
		}
		rl.write(level, "[HTTP] ◀ %s %s %d %s %dB trace=%s",
			method, route, status, time.Since(start).Round(time.Microsecond), c.Writer.Size(), traceID)
	}
}

// requestTraceID берёт trace-ID из span otelgin, затем из заголовка клиента, иначе новый uuid
func requestTraceID(c *gin.Context) string {
	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	if id := c.GetHeader(TraceHeader); validClientTraceID(id) {
		return id
	}
	return uuid.NewString()
}

func validClientTraceID(id string) bool {
	if id == "" || len(id) > maxClientTraceID {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

func (rl *RequestLogger) write(level logging.LogLevel, format string, args ...interface{}) {
	if rl.logger == nil {
		switch level {
		case logging.DEBUG:
			logging.Debug(format, args...)
		case logging.WARN:
			logging.Warn(format, args...)
		case logging.ERROR:
			logging.Error(format, args...)
		default:
			logging.Info(format, args...)
		}
		return
	}

	switch level {
	case logging.DEBUG:
		rl.logger.Debug(format, args...)
	case logging.WARN:
		rl.logger.Warn(format, args...)
	case logging.ERROR:
		rl.logger.Error(format, args...)
	default:
		rl.logger.Info(format, args...)
	}
}
