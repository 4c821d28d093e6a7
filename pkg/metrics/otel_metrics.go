package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 投递相关指标
	DeliveryTotal    metric.Int64Counter
	DeliveryDuration metric.Float64Histogram
	TickDuration     metric.Float64Histogram
	TickDue          metric.Int64Counter

	// 回复与绑定
	ReplyTotal       metric.Int64Counter
	LinkAttemptTotal metric.Int64Counter

	// 额度
	CreditTotal metric.Int64Counter

	// 网关
	GatewaySendTotal    metric.Int64Counter
	GatewaySendDuration metric.Float64Histogram

	// HTTP 相关指标
	HTTPServerRequestTotal   metric.Int64Counter
	HTTPServerDuration       metric.Float64Histogram
	HTTPServerActiveRequests metric.Int64UpDownCounter
}

var (
	metrics  *OTelMetrics
	initOnce sync.Once
	initErr  error
	// otel.Meter 返回全局代理，Provider 设置之后创建的指标会转发到真实实现
	meter = otel.Meter("dailyprompt")
)

// InitMetrics 初始化 OpenTelemetry 指标，可重复调用
func InitMetrics() error {
	initOnce.Do(func() {
		metrics, initErr = newOTelMetrics()
	})
	return initErr
}

func newOTelMetrics() (*OTelMetrics, error) {
	var (
		m   = &OTelMetrics{}
		err error
	)

	if m.DeliveryTotal, err = meter.Int64Counter(
		"delivery_total",
		metric.WithDescription("Delivery outcomes per slot"),
		metric.WithUnit("{delivery}"),
	); err != nil {
		return nil, err
	}

	if m.DeliveryDuration, err = meter.Float64Histogram(
		"delivery_duration_seconds",
		metric.WithDescription("Time spent delivering one recipient slot"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.TickDuration, err = meter.Float64Histogram(
		"scheduler_tick_duration_seconds",
		metric.WithDescription("Duration of one scheduler tick"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.TickDue, err = meter.Int64Counter(
		"scheduler_due_total",
		metric.WithDescription("Recipients found due by the scheduler"),
		metric.WithUnit("{recipient}"),
	); err != nil {
		return nil, err
	}

	if m.ReplyTotal, err = meter.Int64Counter(
		"reply_total",
		metric.WithDescription("Inbound reply correlation outcomes"),
		metric.WithUnit("{reply}"),
	); err != nil {
		return nil, err
	}

	if m.LinkAttemptTotal, err = meter.Int64Counter(
		"link_attempt_total",
		metric.WithDescription("Verification link attempts by status"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}

	if m.CreditTotal, err = meter.Int64Counter(
		"credit_operations_total",
		metric.WithDescription("Credit grants and deductions"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}

	if m.GatewaySendTotal, err = meter.Int64Counter(
		"gateway_send_total",
		metric.WithDescription("Outbound gateway messages"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}

	if m.GatewaySendDuration, err = meter.Float64Histogram(
		"gateway_send_duration_seconds",
		metric.WithDescription("Outbound gateway latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.HTTPServerRequestTotal, err = meter.Int64Counter(
		"http_server_request_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.HTTPServerActiveRequests, err = meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 获取全局指标实例，初始化失败时返回 nil
func GetMetrics() *OTelMetrics {
	_ = InitMetrics()
	return metrics
}

// RecordDelivery 记录一次投递结果，outcome 为 sent / failed 或跳过原因
func (m *OTelMetrics) RecordDelivery(ctx context.Context, slot, outcome string, duration float64) {
	m.DeliveryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slot", slot),
		attribute.String("outcome", outcome),
	))
	m.DeliveryDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("slot", slot),
	))
}

func (m *OTelMetrics) RecordTick(ctx context.Context, slot string, due int, duration float64) {
	m.TickDue.Add(ctx, int64(due), metric.WithAttributes(attribute.String("slot", slot)))
	m.TickDuration.Record(ctx, duration, metric.WithAttributes(attribute.String("slot", slot)))
}

func (m *OTelMetrics) RecordReply(ctx context.Context, outcome string) {
	m.ReplyTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *OTelMetrics) RecordLinkAttempt(ctx context.Context, status string) {
	m.LinkAttemptTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *OTelMetrics) RecordCredit(ctx context.Context, kind, result string) {
	m.CreditTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func (m *OTelMetrics) RecordGatewaySend(ctx context.Context, mode, status string, duration float64) {
	m.GatewaySendTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("parse_mode", mode),
		attribute.String("status", status),
	))
	m.GatewaySendDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("parse_mode", mode),
	))
}
