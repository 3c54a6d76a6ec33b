package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
)

func setupSessionTest(t *testing.T) *SessionRepository {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", getEnv("REDIS_HOST", "localhost"), getEnv("REDIS_PORT", "6379")),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("跳过集成测试: 无法连接 Redis: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return NewSessionRepository(client)
}

func testSession(ownerID string) *Session {
	return &Session{
		Owner:    model.Owner{ID: ownerID, Name: "Hadi", Email: "hadi@pharmacy.test"},
		Pharmacy: model.Pharmacy{ID: "ph-1", Name: "Central Pharmacy"},
	}
}

func TestIntegration_Session_SaveAndGet(t *testing.T) {
	repo := setupSessionTest(t)
	ctx := context.Background()

	ownerID := fmt.Sprintf("owner_%d", time.Now().UnixNano())
	token := fmt.Sprintf("tok_%d", time.Now().UnixNano())
	defer repo.Delete(ctx, ownerID, token)

	require.NoError(t, repo.Save(ctx, testSession(ownerID), token, time.Minute))

	sess, err := repo.Get(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, ownerID, sess.Owner.ID)
	assert.Equal(t, "Central Pharmacy", sess.Pharmacy.Name)
}

func TestIntegration_Session_GetMissing(t *testing.T) {
	repo := setupSessionTest(t)

	sess, err := repo.Get(context.Background(), "tok_missing")
	require.NoError(t, err)
	assert.Nil(t, sess, "不存在的登录态应该返回 nil 而不是错误")
}

func TestIntegration_Session_Delete(t *testing.T) {
	repo := setupSessionTest(t)
	ctx := context.Background()

	ownerID := fmt.Sprintf("owner_%d", time.Now().UnixNano())
	token := fmt.Sprintf("tok_%d", time.Now().UnixNano())

	require.NoError(t, repo.Save(ctx, testSession(ownerID), token, time.Minute))
	require.NoError(t, repo.Delete(ctx, ownerID, token))

	sess, err := repo.Get(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestIntegration_Session_DeleteOld(t *testing.T) {
	repo := setupSessionTest(t)
	ctx := context.Background()

	ownerID := fmt.Sprintf("owner_%d", time.Now().UnixNano())
	oldToken := fmt.Sprintf("tok_old_%d", time.Now().UnixNano())
	newToken := fmt.Sprintf("tok_new_%d", time.Now().UnixNano())
	defer repo.Delete(ctx, ownerID, newToken)

	require.NoError(t, repo.Save(ctx, testSession(ownerID), oldToken, time.Minute))

	// 重新登录：先清旧再存新
	require.NoError(t, repo.DeleteOld(ctx, ownerID))
	require.NoError(t, repo.Save(ctx, testSession(ownerID), newToken, time.Minute))

	old, err := repo.Get(ctx, oldToken)
	require.NoError(t, err)
	assert.Nil(t, old, "旧登录态应该已被清除")

	current, err := repo.Get(ctx, newToken)
	require.NoError(t, err)
	require.NotNil(t, current)
}

func TestIntegration_Session_DeleteOld_NoExisting(t *testing.T) {
	repo := setupSessionTest(t)

	// 没有旧登录态时应该是空操作
	err := repo.DeleteOld(context.Background(), fmt.Sprintf("owner_%d", time.Now().UnixNano()))
	assert.NoError(t, err)
}
