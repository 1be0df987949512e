// Package events defines the event payloads that are published to Kafka.
package events

import "time"

// 事件类型常量，消费方按 type 字段路由。
const (
	TypeChatCompleted  = "chat.completed"
	TypePaymentUpdated = "payment.updated"
)

// ChatCompletedEvent 在一次聊天调用成功完成后发出。
type ChatCompletedEvent struct {
	Type           string    `json:"type"`
	UserID         uint      `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Unrestricted   bool      `json:"unrestricted"`
	Charged        bool      `json:"charged"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// PaymentUpdatedEvent 在支付订单状态变化时发出。
type PaymentUpdatedEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	UserID     uint      `json:"user_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
