package telemetry

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name for application spans
const TracerName = "inmobiliaria-backend"

// Span attribute keys shared by the payment services
const (
	AttrEventID       = "webhook.event_id"
	AttrEventType     = "webhook.event_type"
	AttrInstallmentID = "ledger.installment_id"
	AttrSaleID        = "ledger.sale_id"
	AttrRefundID      = "refund.id"
	AttrAmount        = "payment.amount"
	AttrReference     = "payment.reference"
)

// StartSpan starts an internal span. The caller ends it.
//
//	ctx, span := telemetry.StartSpan(ctx, "ledger.apply_payment",
//		attribute.String(telemetry.AttrInstallmentID, id))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartServiceSpan names the span "<service>.<method>"
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, method), attrs...)
}

// Amount renders a money value as a string attribute so no precision is lost
func Amount(key string, d decimal.Decimal) attribute.KeyValue {
	return attribute.String(key, d.StringFixed(2))
}

// End records err on the span when non-nil, marks it OK otherwise, and ends it.
// Intended for `defer func() { telemetry.End(span, err) }()`.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID returns the active trace id, or "" without a valid span
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
