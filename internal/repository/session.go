package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
)

const (
	// sessionPrefix 会话状态前缀: session:{accessToken} -> Session JSON
	sessionPrefix = "session:"
	// ownerTokenPrefix 老板当前Token前缀: owner:token:{owner_id} -> accessToken
	ownerTokenPrefix = "owner:token:"
)

// Session 存储在 Redis 中的登录态
// 显式的会话上下文对象，取代进程级的隐式全局状态；Login 写入、Logout 清除
type Session struct {
	Owner    model.Owner    `json:"owner"`
	Pharmacy model.Pharmacy `json:"pharmacy"`
}

// SessionRepository 会话状态数据访问层
type SessionRepository struct {
	rdb *redis.Client
}

// NewSessionRepository 创建 Session Repository
func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

// buildSessionKey 构建会话状态的Key: session:{accessToken}
func buildSessionKey(accessToken string) string {
	return sessionPrefix + accessToken
}

// buildOwnerTokenKey 构建老板Token的Key: owner:token:{owner_id}
func buildOwnerTokenKey(ownerID string) string {
	return fmt.Sprintf("%s%s", ownerTokenPrefix, ownerID)
}

// Save 保存登录态到Redis
// 1. session:{accessToken} -> Session JSON
// 2. owner:token:{owner_id} -> accessToken
func (r *SessionRepository) Save(ctx context.Context, session *Session, accessToken string, expiration time.Duration) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, buildSessionKey(accessToken), sessionJSON, expiration)
	pipe.Set(ctx, buildOwnerTokenKey(session.Owner.ID), accessToken, expiration)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Get 根据Token获取登录态
func (r *SessionRepository) Get(ctx context.Context, accessToken string) (*Session, error) {
	data, err := r.rdb.Get(ctx, buildSessionKey(accessToken)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Delete 删除登录态（登出时使用）
func (r *SessionRepository) Delete(ctx context.Context, ownerID, accessToken string) error {
	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, buildSessionKey(accessToken))
	pipe.Del(ctx, buildOwnerTokenKey(ownerID))
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteOld 删除旧登录态（重新登录时清理）
func (r *SessionRepository) DeleteOld(ctx context.Context, ownerID string) error {
	oldToken, err := r.rdb.Get(ctx, buildOwnerTokenKey(ownerID)).Result()
	if err == redis.Nil {
		// 没有旧登录态，无需删除
		return nil
	}
	if err != nil {
		return err
	}

	return r.rdb.Del(ctx, buildSessionKey(oldToken)).Err()
}
