package metrics

import (
	"context"
)

// 以下包级函数在指标不可用时静默跳过

func RecordDelivery(ctx context.Context, slot, outcome string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordDelivery(ctx, slot, outcome, duration)
	}
}

func RecordTick(ctx context.Context, slot string, due int, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordTick(ctx, slot, due, duration)
	}
}

func RecordReply(ctx context.Context, outcome string) {
	if m := GetMetrics(); m != nil {
		m.RecordReply(ctx, outcome)
	}
}

func RecordLinkAttempt(ctx context.Context, status string) {
	if m := GetMetrics(); m != nil {
		m.RecordLinkAttempt(ctx, status)
	}
}

func RecordCredit(ctx context.Context, kind, result string) {
	if m := GetMetrics(); m != nil {
		m.RecordCredit(ctx, kind, result)
	}
}

func RecordGatewaySend(ctx context.Context, mode, status string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordGatewaySend(ctx, mode, status, duration)
	}
}
