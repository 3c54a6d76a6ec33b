package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/reconcile"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/snowflake"
)

// ConversationStore 会话存储接口
type ConversationStore interface {
	QueryByOwner(ctx context.Context, ownerID string, status model.ConversationStatus, limit int) ([]model.Conversation, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	Archive(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string, readerType model.SenderType) error
}

// MessageStore 消息存储接口
type MessageStore interface {
	QueryByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	Create(ctx context.Context, msg *model.Message) error
}

// EventPublisher 变更事件发布接口（由 feed.Publisher 实现）
type EventPublisher interface {
	ConversationChanged(ownerID string)
	MessageCreated(conversationID string)
}

// ChatService 聊天服务
// 所有写操作（消息创建、已读标记、归档）都是委托给存储的单次原子请求，
// 提交成功后发布变更事件驱动订阅刷新
type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	publisher     EventPublisher
	sf            *snowflake.Node
	listLimit     int
	messageLimit  int
	logger        *slog.Logger
}

// NewChatService 创建聊天服务
func NewChatService(conversations ConversationStore, messages MessageStore, publisher EventPublisher, sf *snowflake.Node) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		sf:            sf,
		listLimit:     100,
		messageLimit:  100,
		logger:        slog.Default(),
	}
}

// ListConversations 获取某个老板的会话列表（已物化排序）
func (s *ChatService) ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	snapshot, err := s.conversations.QueryByOwner(ctx, ownerID, model.ConversationStatusActive, s.listLimit)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return reconcile.MaterializeConversations(snapshot), nil
}

// ListMessages 获取某个会话的消息（已物化排序）
func (s *ChatService) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	snapshot, err := s.messages.QueryByConversation(ctx, conversationID, s.messageLimit)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return reconcile.MaterializeMessages(snapshot), nil
}

// GetConversation 获取单个会话
func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.conversations.FindByID(ctx, conversationID)
}

// CreateMessage 创建消息
// 消息记录和父会话摘要的更新由存储在一个事务内完成；这里只负责分配 ID、
// 校验会话存在，并在提交成功后发布变更事件
func (s *ChatService) CreateMessage(ctx context.Context, msg *model.Message) error {
	conv, err := s.conversations.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return err
	}

	msg.ID = s.sf.Generate().String()
	if err := s.messages.Create(ctx, msg); err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}

	s.publisher.MessageCreated(msg.ConversationID)
	s.publisher.ConversationChanged(conv.PharmacyOwnerID)
	return nil
}

// MarkRead 标记会话已读
// 失败只影响角标准确性，不影响消息可见性，调用方可以按 fire-and-forget 处理
func (s *ChatService) MarkRead(ctx context.Context, conversationID string, readerType model.SenderType) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}

	if err := s.conversations.MarkRead(ctx, conversationID, readerType); err != nil {
		return apperrors.ErrReadMarkFailed.Wrap(err)
	}

	s.publisher.ConversationChanged(conv.PharmacyOwnerID)
	return nil
}

// Archive 归档会话
func (s *ChatService) Archive(ctx context.Context, conversationID string) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}

	if err := s.conversations.Archive(ctx, conversationID); err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}

	s.publisher.ConversationChanged(conv.PharmacyOwnerID)
	return nil
}

// CreateConversation 创建会话（顾客首次联系时由顾客侧调用）
func (s *ChatService) CreateConversation(ctx context.Context, customerID, ownerID string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:              s.sf.Generate().String(),
		CustomerID:      customerID,
		PharmacyOwnerID: ownerID,
		Status:          model.ConversationStatusActive,
		LastMessageType: model.MessageTypeText,
		LastMessageAt:   time.Now(),
	}

	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	s.publisher.ConversationChanged(ownerID)
	return conv, nil
}
