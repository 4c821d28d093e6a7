package model

// InboundMessage webhook 收到的一条文本消息，queue 模式下作为 MQ 消息体
type InboundMessage struct {
	MessageID  string `json:"message_id"` // tg:<update_id>，用于幂等性检查
	Identity   string `json:"identity"`
	Text       string `json:"text"`
	ReceivedAt string `json:"received_at"`
	UpdateID   int64  `json:"update_id"`
}
