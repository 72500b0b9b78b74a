package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the service's own spans.
const TracerName = "github.com/stockroom/backend"

// Common attribute keys for consistency across spans and metrics.
var (
	AttrTenant      = attribute.Key("inventory.tenant")
	AttrBarcode     = attribute.Key("inventory.barcode")
	AttrDirection   = attribute.Key("inventory.direction")
	AttrOutcome     = attribute.Key("inventory.outcome")
	AttrSource      = attribute.Key("inventory.transfer.source")
	AttrDestination = attribute.Key("inventory.transfer.destination")
	AttrResult      = attribute.Key("result")
)

// StartSpan starts an internal span from the global tracer provider.
//
//	ctx, span := telemetry.StartSpan(ctx, "ledger.add_stock", telemetry.AttrTenant.String(t))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
