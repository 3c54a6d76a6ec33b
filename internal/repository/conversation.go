package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

// ConversationRepository 会话仓库
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// QueryByOwner 按药店老板查询会话
// 只做等值过滤和条数上限，不带 ORDER BY。排序由客户端重建（见 reconcile 包），
// 这样存储侧不需要预建复合索引
func (r *ConversationRepository) QueryByOwner(ctx context.Context, ownerID string, status model.ConversationStatus, limit int) ([]model.Conversation, error) {
	query := `
		SELECT id, customer_id, pharmacy_owner_id, status, last_message, last_message_type,
		       last_message_at, unread_count_pharmacy_owner, unread_count_customer, created_at
		FROM conversations
		WHERE pharmacy_owner_id = $1 AND status = $2
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, ownerID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]model.Conversation, 0, limit)
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.CustomerID,
			&conv.PharmacyOwnerID,
			&conv.Status,
			&conv.LastMessage,
			&conv.LastMessageType,
			&conv.LastMessageAt,
			&conv.UnreadCountPharmacyOwner,
			&conv.UnreadCountCustomer,
			&conv.CreatedAt,
		); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// FindByID 根据 ID 查找会话
func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	query := `
		SELECT id, customer_id, pharmacy_owner_id, status, last_message, last_message_type,
		       last_message_at, unread_count_pharmacy_owner, unread_count_customer, created_at
		FROM conversations WHERE id = $1
	`

	var conv model.Conversation
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.CustomerID,
		&conv.PharmacyOwnerID,
		&conv.Status,
		&conv.LastMessage,
		&conv.LastMessageType,
		&conv.LastMessageAt,
		&conv.UnreadCountPharmacyOwner,
		&conv.UnreadCountCustomer,
		&conv.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	return &conv, nil
}

// Create 创建会话（顾客首次联系时由顾客侧服务调用）
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	query := `
		INSERT INTO conversations (id, customer_id, pharmacy_owner_id, status, last_message,
		       last_message_type, last_message_at, unread_count_pharmacy_owner, unread_count_customer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING created_at
	`

	return r.db.QueryRow(ctx, query,
		conv.ID,
		conv.CustomerID,
		conv.PharmacyOwnerID,
		conv.Status,
		conv.LastMessage,
		conv.LastMessageType,
		conv.LastMessageAt,
		conv.UnreadCountPharmacyOwner,
		conv.UnreadCountCustomer,
	).Scan(&conv.CreatedAt)
}

// Archive 归档会话
// 会话只会被归档，不会被物理删除
func (r *ConversationRepository) Archive(ctx context.Context, id string) error {
	query := `UPDATE conversations SET status = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, model.ConversationStatusArchived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConversationNotFound
	}
	return nil
}

// MarkRead 标记会话已读，清零对应读者的未读数
// 单条原子语句，未读数不会变成负数
func (r *ConversationRepository) MarkRead(ctx context.Context, id string, readerType model.SenderType) error {
	var query string
	if readerType == model.SenderTypePharmacyOwner {
		query = `UPDATE conversations SET unread_count_pharmacy_owner = 0 WHERE id = $1`
	} else {
		query = `UPDATE conversations SET unread_count_customer = 0 WHERE id = $1`
	}

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConversationNotFound
	}
	return nil
}
