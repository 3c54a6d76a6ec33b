package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

const (
	defaultMaxConversations     = 100
	defaultMaxMessages          = 100
	defaultFirstSnapshotTimeout = 5 * time.Second
)

// ConversationSnapshot 会话列表快照
// 每份快照都是当前匹配集的全量替换，不是增量补丁
type ConversationSnapshot struct {
	Conversations []model.Conversation
	// Timeout 首份快照超时，调用方应结束加载态；底层订阅仍然存活
	Timeout bool
	// Err 订阅出错（权限、前置条件等），快照为空且不会自动重试
	Err *apperrors.AppError
}

// MessageSnapshot 消息快照
type MessageSnapshot struct {
	Messages []model.Message
	Timeout  bool
	Err      *apperrors.AppError
}

// ConversationQuerier 会话查询接口
type ConversationQuerier interface {
	QueryByOwner(ctx context.Context, ownerID string, status model.ConversationStatus, limit int) ([]model.Conversation, error)
}

// MessageQuerier 消息查询接口
type MessageQuerier interface {
	QueryByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// FeedConfig 订阅层配置
type FeedConfig struct {
	MaxConversations     int           // 会话查询条数上限
	MaxMessages          int           // 消息查询条数上限
	FirstSnapshotTimeout time.Duration // 首份快照的看门狗超时
}

// Feed 变更订阅层
// 把存储的变更事件翻译成全量快照流：订阅时立即查询一次，之后每收到一次
// 变更通知就重新查询并下发。下发语义是 at-least-once
type Feed struct {
	conversations ConversationQuerier
	messages      MessageQuerier
	notifier      Notifier
	config        FeedConfig
	logger        *slog.Logger
}

// NewFeed 创建变更订阅层
func NewFeed(conversations ConversationQuerier, messages MessageQuerier, notifier Notifier, config FeedConfig) *Feed {
	// 设置默认值
	if config.MaxConversations <= 0 {
		config.MaxConversations = defaultMaxConversations
	}
	if config.MaxMessages <= 0 {
		config.MaxMessages = defaultMaxMessages
	}
	if config.FirstSnapshotTimeout <= 0 {
		config.FirstSnapshotTimeout = defaultFirstSnapshotTimeout
	}

	return &Feed{
		conversations: conversations,
		messages:      messages,
		notifier:      notifier,
		config:        config,
		logger:        slog.Default(),
	}
}

// ConversationSubscription 会话列表订阅句柄
type ConversationSubscription struct {
	ch           chan ConversationSnapshot
	done         chan struct{}
	first        chan struct{}
	cancelNotify func()
	cancelOnce   sync.Once
	firstOnce    sync.Once
}

// Snapshots 快照流，订阅取消后关闭
func (s *ConversationSubscription) Snapshots() <-chan ConversationSnapshot {
	return s.ch
}

// Cancel 取消订阅，停止下发并释放底层订阅；多次调用是空操作
func (s *ConversationSubscription) Cancel() {
	s.cancelOnce.Do(func() {
		if s.cancelNotify != nil {
			s.cancelNotify()
		}
		close(s.done)
	})
}

func (s *ConversationSubscription) markFirst() {
	s.firstOnce.Do(func() {
		close(s.first)
	})
}

// emit 下发快照
// 快照是全量替换，慢消费者只需要最新一份，过期的直接丢弃
func (s *ConversationSubscription) emit(snap ConversationSnapshot) {
	for {
		select {
		case <-s.done:
			return
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// SubscribeConversations 订阅某个药店老板的会话列表
// 只返回 active 状态的会话；查询不带排序，排序由 reconcile 包重建
func (f *Feed) SubscribeConversations(ctx context.Context, ownerID string) (*ConversationSubscription, error) {
	sub := &ConversationSubscription{
		ch:    make(chan ConversationSnapshot, 1),
		done:  make(chan struct{}),
		first: make(chan struct{}),
	}

	notify := make(chan struct{}, 1)
	cancelNotify, err := f.notifier.Subscribe(ConversationSubject(ownerID), func() {
		select {
		case notify <- struct{}{}:
		default:
			// 已有待处理的通知，重新查询一次即可覆盖
		}
	})
	if err != nil {
		return nil, apperrors.ErrSubscriptionFailed.Wrap(err)
	}
	sub.cancelNotify = cancelNotify

	var wg sync.WaitGroup
	wg.Add(1)
	go f.watchConversationFirstSnapshot(sub, ownerID, &wg)

	go func() {
		defer close(sub.ch)
		defer wg.Wait()

		deliver := func() bool {
			records, err := f.conversations.QueryByOwner(ctx, ownerID, model.ConversationStatusActive, f.config.MaxConversations)
			sub.markFirst()
			if err != nil {
				appErr := ClassifySubscriptionError(err)
				f.logger.Error("Conversation query failed",
					"ownerId", ownerID,
					"code", appErr.Code,
					"error", err,
				)
				sub.emit(ConversationSnapshot{Conversations: []model.Conversation{}, Err: appErr})
				return false
			}
			sub.emit(ConversationSnapshot{Conversations: records})
			return true
		}

		// 出错即停：释放底层订阅，不自动重试
		if !deliver() {
			sub.Cancel()
			return
		}
		for {
			select {
			case <-sub.done:
				return
			case <-notify:
				if !deliver() {
					sub.Cancel()
					return
				}
			}
		}
	}()

	return sub, nil
}

// watchConversationFirstSnapshot 首份快照看门狗
// 超时只结束加载态，不取消底层订阅；真正的首份快照晚到时仍会正常下发
func (f *Feed) watchConversationFirstSnapshot(sub *ConversationSubscription, ownerID string, wg *sync.WaitGroup) {
	defer wg.Done()

	timer := time.NewTimer(f.config.FirstSnapshotTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		// 和首份快照争抢同一个 firstOnce：快照那边先到就不能再发超时，
		// 否则超时空快照会把已经落地的真实快照顶掉。超时下发放在 Once
		// 里面，抢输的 markFirst 会等它发完，真实快照永远排在超时之后
		sub.firstOnce.Do(func() {
			close(sub.first)
			f.logger.Warn("First conversation snapshot timed out", "ownerId", ownerID, "timeout", f.config.FirstSnapshotTimeout)
			sub.emit(ConversationSnapshot{Conversations: []model.Conversation{}, Timeout: true})
		})
	case <-sub.first:
	case <-sub.done:
	}
}

// MessageSubscription 单个会话的消息订阅句柄
type MessageSubscription struct {
	ch           chan MessageSnapshot
	done         chan struct{}
	first        chan struct{}
	cancelNotify func()
	cancelOnce   sync.Once
	firstOnce    sync.Once
}

// Snapshots 快照流，订阅取消后关闭
func (s *MessageSubscription) Snapshots() <-chan MessageSnapshot {
	return s.ch
}

// Cancel 取消订阅；多次调用是空操作
func (s *MessageSubscription) Cancel() {
	s.cancelOnce.Do(func() {
		if s.cancelNotify != nil {
			s.cancelNotify()
		}
		close(s.done)
	})
}

func (s *MessageSubscription) markFirst() {
	s.firstOnce.Do(func() {
		close(s.first)
	})
}

func (s *MessageSubscription) emit(snap MessageSnapshot) {
	for {
		select {
		case <-s.done:
			return
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// SubscribeMessages 订阅某个会话的消息
func (f *Feed) SubscribeMessages(ctx context.Context, conversationID string) (*MessageSubscription, error) {
	sub := &MessageSubscription{
		ch:    make(chan MessageSnapshot, 1),
		done:  make(chan struct{}),
		first: make(chan struct{}),
	}

	notify := make(chan struct{}, 1)
	cancelNotify, err := f.notifier.Subscribe(MessageSubject(conversationID), func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, apperrors.ErrSubscriptionFailed.Wrap(err)
	}
	sub.cancelNotify = cancelNotify

	var wg sync.WaitGroup
	wg.Add(1)
	go f.watchMessageFirstSnapshot(sub, conversationID, &wg)

	go func() {
		defer close(sub.ch)
		defer wg.Wait()

		deliver := func() bool {
			records, err := f.messages.QueryByConversation(ctx, conversationID, f.config.MaxMessages)
			sub.markFirst()
			if err != nil {
				appErr := ClassifySubscriptionError(err)
				f.logger.Error("Message query failed",
					"conversationId", conversationID,
					"code", appErr.Code,
					"error", err,
				)
				sub.emit(MessageSnapshot{Messages: []model.Message{}, Err: appErr})
				return false
			}
			sub.emit(MessageSnapshot{Messages: records})
			return true
		}

		// 出错即停：释放底层订阅，不自动重试
		if !deliver() {
			sub.Cancel()
			return
		}
		for {
			select {
			case <-sub.done:
				return
			case <-notify:
				if !deliver() {
					sub.Cancel()
					return
				}
			}
		}
	}()

	return sub, nil
}

// watchMessageFirstSnapshot 消息订阅的首份快照看门狗
func (f *Feed) watchMessageFirstSnapshot(sub *MessageSubscription, conversationID string, wg *sync.WaitGroup) {
	defer wg.Done()

	timer := time.NewTimer(f.config.FirstSnapshotTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		sub.firstOnce.Do(func() {
			close(sub.first)
			f.logger.Warn("First message snapshot timed out", "conversationId", conversationID, "timeout", f.config.FirstSnapshotTimeout)
			sub.emit(MessageSnapshot{Messages: []model.Message{}, Timeout: true})
		})
	case <-sub.first:
	case <-sub.done:
	}
}

// ClassifySubscriptionError 区分订阅错误
// 权限错误和前置条件错误（缺表、缺对象，对应需要预建索引的查询）需要区分上报，
// 但处理方式一致：下发空快照、结束加载态、不自动重试
func ClassifySubscriptionError(err error) *apperrors.AppError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501": // insufficient_privilege
			return apperrors.ErrSubscriptionDenied.Wrap(err)
		case "42P01", "42704": // undefined_table / undefined_object
			return apperrors.ErrSubscriptionPrecondition.Wrap(err)
		}
	}
	return apperrors.ErrSubscriptionFailed.Wrap(err)
}
