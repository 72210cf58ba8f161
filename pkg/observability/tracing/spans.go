package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation names a traced operation.
type SpanOperation string

const (
	SpanOperationDBQuery  SpanOperation = "db.query"
	SpanOperationDBCount  SpanOperation = "db.count"
	SpanOperationDBInsert SpanOperation = "db.insert"
	SpanOperationDBUpdate SpanOperation = "db.update"
	SpanOperationDBUpsert SpanOperation = "db.upsert"
	SpanOperationDBDelete SpanOperation = "db.delete"
	SpanOperationDBTx     SpanOperation = "db.transaction"

	SpanOperationMsgPublish SpanOperation = "messaging.publish"
	SpanOperationMsgConsume SpanOperation = "messaging.consume"

	SpanOperationCacheGet SpanOperation = "cache.get"
	SpanOperationCacheSet SpanOperation = "cache.set"
)

type spanOptions struct {
	target     string
	attributes []attribute.KeyValue
}

// SpanOption decorates a span started by this package.
type SpanOption func(*spanOptions)

// WithDBCollection sets the collection (or table) the operation targets.
func WithDBCollection(collection string) SpanOption {
	return func(o *spanOptions) {
		o.target = collection
		o.attributes = append(o.attributes, attribute.String("db.collection", collection))
	}
}

// WithDBSystem sets the database system, e.g. "mongodb".
func WithDBSystem(system string) SpanOption {
	return attr(attribute.String("db.system", system))
}

// WithDBName sets the logical database name.
func WithDBName(name string) SpanOption {
	return attr(attribute.String("db.name", name))
}

// WithMessagingSystem sets the broker, e.g. "rabbitmq".
func WithMessagingSystem(system string) SpanOption {
	return attr(attribute.String("messaging.system", system))
}

// WithMessagingDestination sets the topic or routing key.
func WithMessagingDestination(destination string) SpanOption {
	return func(o *spanOptions) {
		o.target = destination
		o.attributes = append(o.attributes, attribute.String("messaging.destination", destination))
	}
}

// WithMessagingMessageID sets the message id.
func WithMessagingMessageID(id string) SpanOption {
	return attr(attribute.String("messaging.message_id", id))
}

// WithCacheKey sets the cache key.
func WithCacheKey(key string) SpanOption {
	return func(o *spanOptions) {
		o.target = key
		o.attributes = append(o.attributes, attribute.String("cache.key", key))
	}
}

// WithAttributes adds arbitrary attributes.
func WithAttributes(kv ...attribute.KeyValue) SpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, kv...)
	}
}

func attr(kv attribute.KeyValue) SpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, kv)
	}
}

func start(ctx context.Context, tracerName, prefix, opKey string, operation SpanOperation, kind trace.SpanKind, opts []SpanOption) (context.Context, trace.Span) {
	o := &spanOptions{attributes: []attribute.KeyValue{attribute.String(opKey, string(operation))}}
	for _, opt := range opts {
		opt(o)
	}
	name := fmt.Sprintf("%s %s", prefix, operation)
	if o.target != "" {
		name = fmt.Sprintf("%s %s %s", prefix, operation, o.target)
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithSpanKind(kind))
	span.SetAttributes(o.attributes...)
	return ctx, span
}

// StartDatabaseSpan starts a client span named "DB <operation> [collection]".
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...SpanOption) (context.Context, trace.Span) {
	return start(ctx, "database", "DB", "db.operation", operation, trace.SpanKindClient, opts)
}

// StartMessagingSpan starts a producer or consumer span named "MSG <operation> [destination]".
func StartMessagingSpan(ctx context.Context, operation SpanOperation, opts ...SpanOption) (context.Context, trace.Span) {
	kind := trace.SpanKindProducer
	if operation == SpanOperationMsgConsume {
		kind = trace.SpanKindConsumer
	}
	return start(ctx, "messaging", "MSG", "messaging.operation", operation, kind, opts)
}

// StartCacheSpan starts a client span named "CACHE <operation> [key]".
func StartCacheSpan(ctx context.Context, operation SpanOperation, opts ...SpanOption) (context.Context, trace.Span) {
	return start(ctx, "cache", "CACHE", "cache.operation", operation, trace.SpanKindClient, opts)
}

// End records err (if any) on span, sets the status and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
