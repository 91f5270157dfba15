package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes must stay low cardinality: record ids and URLs belong in
// logs, which carry the trace_id for correlation.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation runs fn inside a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments outcome store operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(ctx, operation, status, time.Since(start))

	return err
}

// DownloadResult is what an instrumented download reports back for metrics.
type DownloadResult struct {
	Status string
	Kind   string
	Bytes  int
}

// InstrumentDownload wraps the processing of one task: it tracks the task as
// active, opens a span and records the result fn returns.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn func(ctx context.Context) DownloadResult) DownloadResult {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveDownloads(ctx)
	defer t.DecrementActiveDownloads(ctx)

	var result DownloadResult

	ctx, span := t.Tracer().Start(ctx, "download")
	defer span.End()

	result = fn(ctx)

	span.SetAttributes(
		attribute.String("download.status", result.Status),
		attribute.String("download.kind", result.Kind),
	)

	if result.Status != "success" {
		span.SetStatus(codes.Error, result.Kind)
	}

	t.RecordDownload(ctx, result.Status, result.Kind, time.Since(start), result.Bytes)

	return result
}
