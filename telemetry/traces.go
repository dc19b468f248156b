package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
const (
	AttrOperation  = "kcasbin.operation"
	AttrSection    = "kcasbin.section"
	AttrPtype      = "kcasbin.ptype"
	AttrFieldIndex = "kcasbin.field_index"
	AttrRules      = "kcasbin.rules"
)

// SpanOptions provides configuration for span creation.
type SpanOptions struct {
	Section    string
	Ptype      string
	FieldIndex *int
	Rules      int
}

// StartSpan starts a span named "kcasbin.<op>".
func (p *Provider) StartSpan(ctx context.Context, op string, opts SpanOptions) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(AttrOperation, op)}

	if opts.Section != "" {
		attrs = append(attrs, attribute.String(AttrSection, opts.Section))
	}
	if opts.Ptype != "" {
		attrs = append(attrs, attribute.String(AttrPtype, opts.Ptype))
	}
	if opts.FieldIndex != nil {
		attrs = append(attrs, attribute.Int(AttrFieldIndex, *opts.FieldIndex))
	}
	if opts.Rules > 0 {
		attrs = append(attrs, attribute.Int(AttrRules, opts.Rules))
	}

	return p.Tracer().Start(ctx, "kcasbin."+op, trace.WithAttributes(attrs...))
}

// EndSpan ends the span, recording err if non-nil.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
