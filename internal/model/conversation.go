package model

import "time"

// ConversationStatus 会话状态
type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"   // 进行中
	ConversationStatusArchived ConversationStatus = "archived" // 已归档
)

// MessageType 最后一条消息的类型
type MessageType string

const (
	MessageTypeText  MessageType = "text"  // 文本
	MessageTypeImage MessageType = "image" // 图片
)

// Conversation 会话实体
// 每个会话固定属于一个顾客和一个药店老板，归档后不再出现在默认列表中
type Conversation struct {
	ID                       string             `json:"id" db:"id"`
	CustomerID               string             `json:"customerId" db:"customer_id"`
	PharmacyOwnerID          string             `json:"pharmacyOwnerId" db:"pharmacy_owner_id"`
	Status                   ConversationStatus `json:"status" db:"status"`
	LastMessage              string             `json:"lastMessage" db:"last_message"`
	LastMessageType          MessageType        `json:"lastMessageType" db:"last_message_type"`
	LastMessageAt            time.Time          `json:"lastMessageAt" db:"last_message_at"`
	UnreadCountPharmacyOwner int                `json:"unreadCountPharmacyOwner" db:"unread_count_pharmacy_owner"`
	UnreadCountCustomer      int                `json:"unreadCountCustomer" db:"unread_count_customer"`
	CreatedAt                time.Time          `json:"createdAt" db:"created_at"`
}
