package observability

import (
	"context"
	"time"

	"github.com/annel0/voxel-mesher/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const shutdownTimeout = 5 * time.Second

// ShutdownFunc сбрасывает накопленные span и останавливает TracerProvider
type ShutdownFunc func(context.Context) error

// Options настройки трассировки
type Options struct {
	ServiceName string
	Enabled     bool

	// Endpoint host:port OTLP/HTTP коллектора без TLS.
	// Пусто: стандартные OTEL_EXPORTER_OTLP_* переменные (по умолчанию localhost:4318).
	Endpoint string

	// SampleRatio доля записываемых корневых трасс, (0, 1]. 0 трактуется как 1.
	SampleRatio float64
}

// InitTelemetry устанавливает глобальный TracerProvider и W3C propagator.
// При выключенной трассировке глобальный провайдер остаётся no-op.
func InitTelemetry(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if !opts.Enabled {
		logging.Debug("OpenTelemetry выключен")
		return func(context.Context) error { return nil }, nil
	}

	var exporterOpts []otlptracehttp.Option
	if opts.Endpoint != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(opts.Endpoint), otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return nil, err
	}

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logging.Info("📡 OpenTelemetry: service=%s, sample=%.2f", opts.ServiceName, ratio)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
