package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jsamuelsen/quotesync/internal/adapters/clients"

// instruments holds the tracer and meters of one client.
type instruments struct {
	service  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	calls    metric.Int64Counter
}

func newInstruments(service string) (*instruments, error) {
	meter := otel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram("http.client.request.duration",
		metric.WithDescription("Time spent on calls to a downstream service, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	calls, err := meter.Int64Counter("http.client.request.total",
		metric.WithDescription("Calls to a downstream service by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating call counter: %w", err)
	}

	return &instruments{
		service:  service,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
		calls:    calls,
	}, nil
}

func (in *instruments) startSpan(ctx context.Context, req *http.Request) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "HTTP "+req.Method+" "+in.service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("peer.service", in.service),
		),
	)
}

func (in *instruments) succeed(ctx context.Context, span trace.Span, method string, status int, elapsed time.Duration) {
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status >= http.StatusBadRequest {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
	}

	in.record(ctx, method, status, elapsed, strconv.Itoa(status/100)+"xx")
}

func (in *instruments) fail(ctx context.Context, span trace.Span, method string, elapsed time.Duration, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	outcome := "error"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		outcome = "context_canceled"
	}

	in.record(ctx, method, 0, elapsed, outcome)
}

// record is detached from ctx cancellation so a cancelled call is still
// counted.
func (in *instruments) record(ctx context.Context, method string, status int, elapsed time.Duration, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("peer.service", in.service),
		attribute.String("result", outcome),
	}

	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	opt := metric.WithAttributes(attrs...)
	ctx = context.WithoutCancel(ctx)

	in.duration.Record(ctx, elapsed.Seconds(), opt)
	in.calls.Add(ctx, 1, opt)
}
