package application

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instruments holds the RED metrics and tracer shared by the use cases of one
// service. Instruments are resolved once at construction.
type Instruments struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(service string, tel observability.Observability) *Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Instruments{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (i *Instruments) Logger() observability.Logger { return i.log }

// Run is one in-flight use case execution.
type Run struct {
	ins     *Instruments
	ctx     context.Context
	span    trace.Span
	logger  observability.Logger
	useCase string
	start   time.Time
	status  string
	fields  []observability.Field
}

// Begin starts the span and the request-scoped logger for useCase. Callers
// must defer End.
func (i *Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	ctx, logger := logctx.Enrich(ctx, i.log, observability.F("use_case", useCase))
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := i.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	return ctx, &Run{
		ins:     i,
		ctx:     ctx,
		span:    span,
		logger:  logger,
		useCase: useCase,
		start:   time.Now(),
		status:  "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.logger }

func (r *Run) Span() trace.Span { return r.span }

// SetStatus overrides the status text reported on the span and log line.
func (r *Run) SetStatus(status string) { r.status = status }

// Field adds a field to the closing use_case_done line.
func (r *Run) Field(key string, value any) {
	r.fields = append(r.fields, observability.F(key, value))
}

// End records metrics, closes the span and writes use_case_done.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	outcome := "success"
	if err != nil {
		outcome = "error"
		if r.status == "OK" {
			r.status = statusOf(err)
		}
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	r.ins.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", outcome),
	)
	r.ins.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := []observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.logger.Info("use_case_done", fields...)
}

// External calls fn against a peer and records external_requests_total and
// its duration. The error from fn is returned unchanged.
func (i *Instruments) External(ctx context.Context, peer, endpoint string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case ctx.Err() != nil:
		outcome = "canceled"
		err = ctx.Err()
	}
	i.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	i.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
	return err
}

func statusOf(err error) string {
	if code := failure.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "CONTEXT_CANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_DEADLINE"
	}
	return "INTERNAL"
}
