package socketio

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	siop "github.com/relaymesh/socketio/protocol"
)

const instrumentationName = "github.com/relaymesh/socketio"

// startSpan opens the span of one dispatched packet.
func (svr *Server) startSpan(c *conn, pac *siop.Packet) trace.Span {
	attrs := []attribute.KeyValue{
		attribute.String("socketio.sid", string(c.sess.ID)),
		attribute.String("socketio.nsp", pac.Nsp()),
	}
	if pac.Event != "" {
		attrs = append(attrs, attribute.String("socketio.event", pac.Event))
	}
	_, span := svr.tracer.Start(context.Background(), "socketio.packet "+pac.Type.String(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
