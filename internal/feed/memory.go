package feed

import "sync"

// MemoryNotifier 进程内变更通知器
// 单进程部署和测试时使用，语义与 NATS 实现一致
type MemoryNotifier struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]func()
}

// NewMemoryNotifier 创建进程内变更通知器
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{
		handlers: make(map[string]map[int]func()),
	}
}

// Subscribe 订阅主题
func (n *MemoryNotifier) Subscribe(subject string, fn func()) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	if n.handlers[subject] == nil {
		n.handlers[subject] = make(map[int]func())
	}
	n.handlers[subject][id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers[subject], id)
	}, nil
}

// Publish 发布一次变更事件，同步回调所有订阅者
func (n *MemoryNotifier) Publish(subject string) error {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.handlers[subject]))
	for _, fn := range n.handlers[subject] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// SubscriberCount 某个主题当前的订阅数
func (n *MemoryNotifier) SubscriberCount(subject string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handlers[subject])
}
