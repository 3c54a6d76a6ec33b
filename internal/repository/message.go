package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
)

// MessageRepository 消息仓库
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// QueryByConversation 按会话查询消息
// 与会话查询一样只做过滤和条数上限，不带 ORDER BY
func (r *MessageRepository) QueryByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, sender_name, sender_type, content, image_url, created_at
		FROM messages
		WHERE conversation_id = $1
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderType,
			&msg.Content,
			&msg.ImageURL,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Create 创建消息
// 消息插入和父会话的摘要更新（last_message 三元组 + 对方未读数加一）在同一个
// 事务内完成，要么全部生效要么全部失败，这是发送管线依赖的原子性契约。
// created_at 由数据库赋值，是消息排序的权威依据
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_type, content, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`

	err = tx.QueryRow(ctx, insertQuery,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderType,
		msg.Content,
		msg.ImageURL,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return err
	}

	messageType := model.MessageTypeText
	if msg.ImageURL != "" {
		messageType = model.MessageTypeImage
	}

	// 顾客发的消息累加老板的未读数，反之亦然
	var updateQuery string
	if msg.SenderType == model.SenderTypeCustomer {
		updateQuery = `
			UPDATE conversations
			SET last_message = $2, last_message_type = $3, last_message_at = $4,
			    unread_count_pharmacy_owner = unread_count_pharmacy_owner + 1
			WHERE id = $1
		`
	} else {
		updateQuery = `
			UPDATE conversations
			SET last_message = $2, last_message_type = $3, last_message_at = $4,
			    unread_count_customer = unread_count_customer + 1
			WHERE id = $1
		`
	}

	if _, err := tx.Exec(ctx, updateQuery, msg.ConversationID, msg.Content, messageType, msg.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
