package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorKindKey classifies a failed span, e.g. "timeout" or "validation".
const ErrorKindKey = "browserflow.error.kind"

// SetError marks span as failed and records err. An empty kind is omitted.
func SetError(span trace.Span, err error, kind string, attrs ...attribute.KeyValue) {
	if kind != "" {
		attrs = append(attrs, attribute.String(ErrorKindKey, kind))
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
