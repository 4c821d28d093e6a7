package mq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "dailyprompt.rabbitmq"

var (
	instrumentsOnce sync.Once
	messagesTotal   metric.Int64Counter
	messageDuration metric.Float64Histogram
)

func instruments() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		messagesTotal, _ = meter.Int64Counter(
			"mq.messages.total",
			metric.WithDescription("Total number of RabbitMQ messages"),
			metric.WithUnit("{message}"),
		)
		messageDuration, _ = meter.Float64Histogram(
			"mq.message.duration",
			metric.WithDescription("RabbitMQ publish and handle duration"),
			metric.WithUnit("s"),
		)
	})
}

// PublishWithTracing 发布消息，并把追踪上下文注入消息头
func PublishWithTracing(ctx context.Context, ch *amqp.Channel, exchange, routingKey string, msg amqp.Publishing) error {
	instruments()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "rabbitmq.publish "+routingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingDestinationName(exchange),
			semconv.MessagingRabbitmqDestinationRoutingKey(routingKey),
		),
	)
	defer span.End()

	msg.Headers = InjectHeaders(ctx, msg.Headers)

	start := time.Now()
	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	record(ctx, "publish", routingKey, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// StartProcessSpan 从消息头恢复上游追踪上下文，返回处理 span 和结束回调
func StartProcessSpan(ctx context.Context, queue string, d amqp.Delivery) (context.Context, func(error)) {
	instruments()

	ctx = ExtractHeaders(ctx, d.Headers)
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "rabbitmq.process "+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingDestinationName(queue),
			semconv.MessagingMessageID(d.MessageId),
		),
	)

	start := time.Now()
	return ctx, func(err error) {
		record(ctx, "process", queue, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func record(ctx context.Context, op, queue string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("messaging.operation", op),
		attribute.String("messaging.queue", queue),
		attribute.String("messaging.status", status),
	)
	if messagesTotal != nil {
		messagesTotal.Add(ctx, 1, attrs)
	}
	if messageDuration != nil {
		messageDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func InjectHeaders(ctx context.Context, headers amqp.Table) amqp.Table {
	out := make(amqp.Table, len(headers)+2)
	for k, v := range headers {
		out[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, &MessageHeaderCarrier{Headers: out})
	return out
}

func ExtractHeaders(ctx context.Context, headers amqp.Table) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &MessageHeaderCarrier{Headers: headers})
}

// MessageHeaderCarrier 实现 propagation.TextMapCarrier 接口
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}
