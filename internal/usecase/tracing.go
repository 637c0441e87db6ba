package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("marketplace/usecase")

func startSpan(ctx context.Context, name string, actor Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.Int64("actor.user_id", actor.UserID),
		attribute.String("actor.role", string(actor.Role)),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// 4xxは業務エラーなのでspanはエラーにしない
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if he, ok := AsHTTPError(err); !ok || he.Status >= 500 {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("http.status_code", he.Status))
		}
	}
	span.End()
}
