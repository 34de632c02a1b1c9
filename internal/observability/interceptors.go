// Package observability provides the metrics HTTP server and gRPC interceptors.
package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zoom-transcript-service/internal/observability/metrics"
	"zoom-transcript-service/internal/observability/tracing"
)

// observe records one finished call as a metric, a span and a log line.
func observe(m *metrics.Metrics, span trace.Span, method string, start time.Time, err error) {
	duration := time.Since(start)
	code := status.Code(err)
	m.RecordRPC(method, code.String(), duration.Seconds())

	span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
	if code != codes.OK {
		span.SetStatus(otelcodes.Error, code.String())
	}
	span.End()

	ev := log.Debug()
	if code != codes.OK && code != codes.Canceled {
		ev = log.Warn()
	}
	ev.Str("method", method).
		Str("code", code.String()).
		Dur("duration", duration).
		Msg("gRPC call completed")
}

// UnaryServerInterceptor returns a gRPC unary interceptor for metrics, tracing and logging.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		ctx, span := tracing.Tracer().Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))

		resp, err := handler(ctx, req)

		observe(m, span, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor for metrics, tracing and logging.
// Health watches are long-lived streams, so they are observed at completion only.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		_, span := tracing.Tracer().Start(ss.Context(), info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))

		err := handler(srv, ss)

		observe(m, span, info.FullMethod, start, err)
		return err
	}
}
