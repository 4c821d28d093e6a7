package model

// SkipReason 没有发送的原因，都是正常结果而不是错误
type SkipReason string

const (
	SkipAlreadySent SkipReason = "already-sent"
	SkipInFlight    SkipReason = "in-flight"
	SkipNoContent   SkipReason = "no-content"
	SkipNotLinked   SkipReason = "not-linked"
	SkipInactive    SkipReason = "inactive"
)

// DeliveryResult 一次 (recipient, slot) 投递的结果
type DeliveryResult struct {
	SkippedReason SkipReason `json:"skipped_reason,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	SlotDate      string     `json:"slot_date"`
	Sent          bool       `json:"sent"`
}

func Sent(date, correlationID string) DeliveryResult {
	return DeliveryResult{Sent: true, SlotDate: date, CorrelationID: correlationID}
}

func Skipped(date string, reason SkipReason) DeliveryResult {
	return DeliveryResult{SlotDate: date, SkippedReason: reason}
}
