package model

import "time"

// SenderType 发送方类型
type SenderType string

const (
	SenderTypeCustomer      SenderType = "customer"       // 顾客
	SenderTypePharmacyOwner SenderType = "pharmacy-owner" // 药店老板
)

// Message 消息实体
// 会话内的消息只追加，不修改不删除；CreatedAt 由服务端写入时赋值，是排序的唯一依据
type Message struct {
	ID             string     `json:"id" db:"id"`
	ConversationID string     `json:"conversationId" db:"conversation_id"`
	SenderID       string     `json:"senderId" db:"sender_id"`
	SenderName     string     `json:"senderName" db:"sender_name"`
	SenderType     SenderType `json:"senderType" db:"sender_type"`
	Content        string     `json:"content,omitempty" db:"content"`
	ImageURL       string     `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}
