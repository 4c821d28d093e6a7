package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Update webhook 推送的结构，只解析需要的字段
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func ParseUpdate(body []byte) (*Update, error) {
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("invalid telegram update: %w", err)
	}
	return &u, nil
}

// SenderIdentity 私聊场景下 chat id 即发送者身份，也是 sendMessage 的目标
func (m *Message) SenderIdentity() string {
	return strconv.FormatInt(m.Chat.ID, 10)
}
