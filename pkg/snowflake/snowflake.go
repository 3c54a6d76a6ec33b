// Package snowflake 生成会话和消息的文档 ID
// ID 对外一律是不透明的十进制字符串，排序依据是消息的 created_at 而不是 ID，
// 这里只保证全局唯一
package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// 64 位布局：41 位毫秒时间戳（自 epoch 起）| 10 位节点 | 12 位序号。
// 同一节点同一毫秒最多 4096 个 ID，用尽时自旋等下一毫秒
const (
	epoch int64 = 1704067200000 // 2024-01-01 00:00:00 UTC

	nodeBits     = 10
	sequenceBits = 12

	maxNodeID   = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	nodeShift      = sequenceBits
	timestampShift = nodeBits + sequenceBits
)

// ID 一个生成出来的文档 ID
type ID int64

// String 十进制字符串形式，存储和 JSON 里都用这个形式
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 原始整数值
func (id ID) Int64() int64 {
	return int64(id)
}

// Node 一个生成器实例，进程内并发安全
type Node struct {
	mu       sync.Mutex
	nodeID   int64
	sequence int64
	lastTime int64
}

// NewNode 创建生成器，nodeID 用于区分多实例部署
func NewNode(nodeID int64) (*Node, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("snowflake: node id %d out of range [0, %d]", nodeID, maxNodeID)
	}
	return &Node{nodeID: nodeID}, nil
}

// Generate 生成一个新 ID
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == n.lastTime {
		n.sequence = (n.sequence + 1) & maxSequence
		if n.sequence == 0 {
			// 序号用尽，等待下一毫秒
			for now <= n.lastTime {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.sequence = 0
	}

	n.lastTime = now

	return ID((now-epoch)<<timestampShift | n.nodeID<<nodeShift | n.sequence)
}
