package view

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/delivery"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/feed"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/reconcile"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

// State 某个数据槽位的生命周期状态
type State int

const (
	// StateIdle 尚未订阅
	StateIdle State = iota
	// StateLoading 已订阅，等待首份快照
	StateLoading
	// StateReady 收到过首份快照（含超时降级的空快照），后续快照原地替换
	StateReady
	// StateClosed 视图已关闭，不再接收任何更新
	StateClosed
)

// ConversationsUpdate 会话列表更新
type ConversationsUpdate struct {
	Conversations []model.Conversation
	Timeout       bool
	Err           *apperrors.AppError
}

// MessagesUpdate 当前选中会话的消息更新
type MessagesUpdate struct {
	ConversationID string
	Messages       []model.Message
	Timeout        bool
	Err            *apperrors.AppError
}

// ReadMarker 已读标记接口（由 service.ChatService 实现）
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID string, readerType model.SenderType) error
}

// ChatView 一个客户端连接的聊天视图
// 会话列表和选中会话的消息各占一个槽位，槽位独立走 Idle -> Loading -> Ready
// 的生命周期。切换选中会话时先取消旧的消息订阅再建新的，旧订阅的迟到快照
// 不会串进新会话的槽位
type ChatView struct {
	feed     *feed.Feed
	marker   ReadMarker
	pipeline *delivery.Pipeline
	ownerID  string
	logger   *slog.Logger

	onConversations func(ConversationsUpdate)
	onMessages      func(MessagesUpdate)

	mu            sync.Mutex
	listState     State
	messageState  State
	convSub       *feed.ConversationSubscription
	msgSub        *feed.MessageSubscription
	selected      string
	conversations []model.Conversation
	markedRead    map[string]bool

	text       string
	attachment *delivery.Attachment
}

// NewChatView 创建聊天视图
func NewChatView(f *feed.Feed, marker ReadMarker, pipeline *delivery.Pipeline, ownerID string) *ChatView {
	return &ChatView{
		feed:       f,
		marker:     marker,
		pipeline:   pipeline,
		ownerID:    ownerID,
		logger:     slog.Default(),
		markedRead: make(map[string]bool),
	}
}

// OnConversations 注册会话列表更新回调，必须在 Open 之前调用
func (v *ChatView) OnConversations(fn func(ConversationsUpdate)) {
	v.onConversations = fn
}

// OnMessages 注册消息更新回调，必须在 Select 之前调用
func (v *ChatView) OnMessages(fn func(MessagesUpdate)) {
	v.onMessages = fn
}

// ListState 会话列表槽位的状态
func (v *ChatView) ListState() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listState
}

// MessageState 消息槽位的状态
func (v *ChatView) MessageState() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.messageState
}

// Selected 当前选中的会话 ID，未选中时为空
func (v *ChatView) Selected() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

// Open 打开视图并订阅会话列表
func (v *ChatView) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.listState == StateClosed {
		v.mu.Unlock()
		return apperrors.ErrSubscriptionFailed
	}
	if v.listState != StateIdle {
		v.mu.Unlock()
		return nil
	}
	v.listState = StateLoading
	v.mu.Unlock()

	sub, err := v.feed.SubscribeConversations(ctx, v.ownerID)
	if err != nil {
		v.mu.Lock()
		v.listState = StateIdle
		v.mu.Unlock()
		return err
	}

	v.mu.Lock()
	if v.listState == StateClosed {
		v.mu.Unlock()
		sub.Cancel()
		return apperrors.ErrSubscriptionFailed
	}
	v.convSub = sub
	v.mu.Unlock()

	go v.pumpConversations(sub)
	return nil
}

func (v *ChatView) pumpConversations(sub *feed.ConversationSubscription) {
	for snap := range sub.Snapshots() {
		update := ConversationsUpdate{
			Conversations: reconcile.MaterializeConversations(snap.Conversations),
			Timeout:       snap.Timeout,
			Err:           snap.Err,
		}

		v.mu.Lock()
		if v.convSub != sub || v.listState == StateClosed {
			v.mu.Unlock()
			return
		}
		v.listState = StateReady
		if snap.Err == nil && !snap.Timeout {
			v.conversations = update.Conversations
			// 未读清零后解除标记守卫，之后再有未读还能重新标记
			for i := range update.Conversations {
				if update.Conversations[i].UnreadCountPharmacyOwner == 0 {
					delete(v.markedRead, update.Conversations[i].ID)
				}
			}
		}
		fn := v.onConversations
		v.mu.Unlock()

		if fn != nil {
			fn(update)
		}
	}
}

// Select 选中一个会话并订阅它的消息
// 旧的消息订阅先取消再建新的；选中的会话有未读时发一次 fire-and-forget
// 的已读标记，标记失败只影响角标，不打断视图
func (v *ChatView) Select(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return apperrors.ErrNoConversation
	}

	v.mu.Lock()
	if v.messageState == StateClosed || v.listState == StateClosed {
		v.mu.Unlock()
		return apperrors.ErrSubscriptionFailed
	}
	if old := v.msgSub; old != nil {
		old.Cancel()
		v.msgSub = nil
	}
	v.selected = conversationID
	v.messageState = StateLoading
	shouldMark := v.unreadLocked(conversationID) > 0 && !v.markedRead[conversationID]
	if shouldMark {
		v.markedRead[conversationID] = true
	}
	v.mu.Unlock()

	if shouldMark {
		go func() {
			if err := v.marker.MarkRead(context.WithoutCancel(ctx), conversationID, model.SenderTypePharmacyOwner); err != nil {
				v.logger.Warn("Read mark failed", "conversationId", conversationID, "error", err)
				v.mu.Lock()
				delete(v.markedRead, conversationID)
				v.mu.Unlock()
			}
		}()
	}

	sub, err := v.feed.SubscribeMessages(ctx, conversationID)
	if err != nil {
		v.mu.Lock()
		if v.selected == conversationID {
			v.messageState = StateIdle
		}
		v.mu.Unlock()
		return err
	}

	v.mu.Lock()
	if v.messageState == StateClosed || v.selected != conversationID {
		v.mu.Unlock()
		sub.Cancel()
		return nil
	}
	v.msgSub = sub
	v.mu.Unlock()

	go v.pumpMessages(sub, conversationID)
	return nil
}

func (v *ChatView) pumpMessages(sub *feed.MessageSubscription, conversationID string) {
	for snap := range sub.Snapshots() {
		update := MessagesUpdate{
			ConversationID: conversationID,
			Messages:       reconcile.MaterializeMessages(snap.Messages),
			Timeout:        snap.Timeout,
			Err:            snap.Err,
		}

		v.mu.Lock()
		// 选中会话已经切走或视图已关，丢弃迟到的快照
		if v.msgSub != sub || v.messageState == StateClosed {
			v.mu.Unlock()
			return
		}
		v.messageState = StateReady
		fn := v.onMessages
		v.mu.Unlock()

		if fn != nil {
			fn(update)
		}
	}
}

func (v *ChatView) unreadLocked(conversationID string) int {
	for i := range v.conversations {
		if v.conversations[i].ID == conversationID {
			return reconcile.UnreadCount(&v.conversations[i])
		}
	}
	return 0
}

// Deselect 取消选中，停止消息订阅
func (v *ChatView) Deselect() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.msgSub != nil {
		v.msgSub.Cancel()
		v.msgSub = nil
	}
	v.selected = ""
	if v.messageState != StateClosed {
		v.messageState = StateIdle
	}
}

// Close 关闭视图，取消所有订阅；多次调用是空操作
func (v *ChatView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listState == StateClosed {
		return
	}
	if v.convSub != nil {
		v.convSub.Cancel()
		v.convSub = nil
	}
	if v.msgSub != nil {
		v.msgSub.Cancel()
		v.msgSub = nil
	}
	v.listState = StateClosed
	v.messageState = StateClosed
}

// SetText 更新输入框文本
func (v *ChatView) SetText(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.text = text
}

// Text 当前输入框文本
func (v *ChatView) Text() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

// Attach 设置待发送的图片附件，替换之前未发送的附件
func (v *ChatView) Attach(att *delivery.Attachment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attachment = att
}

// Send 发送输入框中的内容到当前选中的会话
// 成功后清空输入框和附件；失败保留内容让用户重试
func (v *ChatView) Send(ctx context.Context, sender delivery.Sender) error {
	v.mu.Lock()
	conversationID := v.selected
	text := v.text
	attachment := v.attachment
	v.mu.Unlock()

	if err := v.pipeline.Send(ctx, conversationID, sender, text, attachment); err != nil {
		return err
	}

	v.mu.Lock()
	v.text = ""
	v.attachment = nil
	v.mu.Unlock()
	return nil
}

// Sending 是否有消息在途
func (v *ChatView) Sending() bool {
	return v.pipeline.Sending()
}
