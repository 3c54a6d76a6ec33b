package feed

import "log/slog"

// Publisher 变更事件发布器
// 写路径（消息创建、已读标记、归档）提交成功后调用，驱动所有在线订阅刷新
type Publisher struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewPublisher 创建变更事件发布器
func NewPublisher(notifier Notifier) *Publisher {
	return &Publisher{
		notifier: notifier,
		logger:   slog.Default(),
	}
}

// ConversationChanged 通知某个老板的会话列表发生变化
func (p *Publisher) ConversationChanged(ownerID string) {
	if err := p.notifier.Publish(ConversationSubject(ownerID)); err != nil {
		// 通知失败不影响写入本身，订阅方下一次事件到来时会补齐
		p.logger.Warn("Failed to notify conversation change", "ownerId", ownerID, "error", err)
	}
}

// MessageCreated 通知某个会话有新消息
func (p *Publisher) MessageCreated(conversationID string) {
	if err := p.notifier.Publish(MessageSubject(conversationID)); err != nil {
		p.logger.Warn("Failed to notify message change", "conversationId", conversationID, "error", err)
	}
}
