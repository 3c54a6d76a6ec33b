package reconcile

import (
	"sort"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
)

// 排序在客户端重建，存储侧的查询因此可以保持免索引。
// 两个 Materialize 都用稳定排序：时间相同的记录保持快照顺序。

// MaterializeConversations 物化会话列表
// 按 lastMessageAt 倒序（最新的在前）；零值时间排在最后
func MaterializeConversations(snapshot []model.Conversation) []model.Conversation {
	ordered := make([]model.Conversation, len(snapshot))
	copy(ordered, snapshot)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LastMessageAt.After(ordered[j].LastMessageAt)
	})

	return ordered
}

// MaterializeMessages 物化消息序列
// 按 createdAt 正序（最早的在前）；还没被服务端盖时间戳的消息按零值时间
// 排在最前面，下一份快照时间戳落地后顺序会自行修正
func MaterializeMessages(snapshot []model.Message) []model.Message {
	ordered := make([]model.Message, len(snapshot))
	copy(ordered, snapshot)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	return ordered
}

// UnreadCount 会话的未读角标
// 直接取存储下发的计数，不在本地用消息内容重算
func UnreadCount(conv *model.Conversation) int {
	return conv.UnreadCountPharmacyOwner
}
