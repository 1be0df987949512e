// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色只有两种：用户输入与模型回复。
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Conversation 代表一个归属于单个用户的对话线程。
type Conversation struct {
	ID     string `gorm:"type:char(36);primaryKey" json:"id"`
	UserID uint   `gorm:"index;not null" json:"userId"`
	// Title 取自首条用户消息的定长前缀。
	Title     string    `gorm:"type:varchar(120);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
	Messages  []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// Message 代表对话中的一条消息，追加后不可变。
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"type:char(36);index;not null" json:"conversationId"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}

// ConversationSummary 是对话列表接口返回的轻量视图。
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage 代表缓存在 Redis 中、用于拼接上下文的单条消息。
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EsMessageDocument 是写入 Elasticsearch 的消息文档，供历史检索使用。
type EsMessageDocument struct {
	MessageID      uint      `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
