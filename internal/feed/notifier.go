package feed

import (
	"log/slog"

	"github.com/nats-io/nats.go"
)

// 变更事件主题
// 事件本身不携带数据，只是"有变化"的信号，订阅方收到后重新查询并下发全量快照
const (
	subjectConversationPrefix = "chat.conv.owner."
	subjectMessagePrefix      = "chat.msg.conv."
)

// ConversationSubject 某个药店老板的会话列表变更主题
func ConversationSubject(ownerID string) string {
	return subjectConversationPrefix + ownerID
}

// MessageSubject 某个会话的消息变更主题
func MessageSubject(conversationID string) string {
	return subjectMessagePrefix + conversationID
}

// Notifier 变更通知器接口
// 生产实现基于 NATS；测试使用内存实现
type Notifier interface {
	// Subscribe 订阅主题，每次收到事件回调 fn；返回的函数用于取消订阅
	Subscribe(subject string, fn func()) (func(), error)
	// Publish 发布一次变更事件
	Publish(subject string) error
}

// NATSNotifier 基于 NATS 的变更通知器
type NATSNotifier struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSNotifier 创建 NATS 变更通知器
func NewNATSNotifier(nc *nats.Conn) *NATSNotifier {
	return &NATSNotifier{
		nc:     nc,
		logger: slog.Default(),
	}
}

// Subscribe 订阅变更主题
func (n *NATSNotifier) Subscribe(subject string, fn func()) (func(), error) {
	sub, err := n.nc.Subscribe(subject, func(msg *nats.Msg) {
		fn()
	})
	if err != nil {
		return nil, err
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Error("Failed to unsubscribe", "subject", subject, "error", err)
		}
	}, nil
}

// Publish 发布变更事件
func (n *NATSNotifier) Publish(subject string) error {
	if err := n.nc.Publish(subject, nil); err != nil {
		n.logger.Error("Failed to publish change event", "subject", subject, "error", err)
		return err
	}
	return nil
}
