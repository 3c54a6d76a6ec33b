package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/repository"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/jwt"
)

// Verifier 凭证校验接口（由 AuthClient 实现）
type Verifier interface {
	Verify(ctx context.Context, email, password string) (*model.Owner, *model.Pharmacy, error)
}

// LoginResult 登录结果
type LoginResult struct {
	AccessToken string         `json:"access_token"`
	ExpiresAt   int64          `json:"expires_at"`
	Owner       model.Owner    `json:"owner"`
	Pharmacy    model.Pharmacy `json:"pharmacy"`
}

// Manager 登录态管理
// 登录态是显式的会话对象：Login 建立、Logout 销毁，请求携带的 Token 只是
// 它的索引。同一个老板重新登录会先清掉旧会话，不允许两份登录态并存
type Manager struct {
	verifier Verifier
	sessions *repository.SessionRepository
	jwtSvc   *jwt.Service
	logger   *slog.Logger
}

// NewManager 创建登录态管理器
func NewManager(verifier Verifier, sessions *repository.SessionRepository, jwtSvc *jwt.Service) *Manager {
	return &Manager{
		verifier: verifier,
		sessions: sessions,
		jwtSvc:   jwtSvc,
		logger:   slog.Default(),
	}
}

// Login 登录
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	owner, pharmacy, err := m.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// 清理同一老板的旧登录态
	if err := m.sessions.DeleteOld(ctx, owner.ID); err != nil {
		m.logger.Warn("Delete old session failed", "ownerId", owner.ID, "error", err)
	}

	token, expiresAt, err := m.jwtSvc.GenerateToken(owner.ID, pharmacy.ID)
	if err != nil {
		return nil, apperrors.ErrServerError.Wrap(err)
	}

	sess := &repository.Session{Owner: *owner, Pharmacy: *pharmacy}
	if err := m.sessions.Save(ctx, sess, token, m.jwtSvc.GetExpire()); err != nil {
		return nil, apperrors.ErrServerError.Wrap(err)
	}

	m.logger.Info("Owner logged in", "ownerId", owner.ID, "pharmacyId", pharmacy.ID)
	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   expiresAt.Unix(),
		Owner:       *owner,
		Pharmacy:    *pharmacy,
	}, nil
}

// Get 根据 Token 取登录态
// Token 有效但 Redis 里没有会话（已登出或被新登录顶掉）也视为未登录
func (m *Manager) Get(ctx context.Context, token string) (*repository.Session, error) {
	if _, err := m.validate(token); err != nil {
		return nil, err
	}

	sess, err := m.sessions.Get(ctx, token)
	if err != nil {
		return nil, apperrors.ErrServerError.Wrap(err)
	}
	if sess == nil {
		return nil, apperrors.ErrSessionNotFound
	}

	return sess, nil
}

// Logout 登出，会话销毁后 Token 立即失效
func (m *Manager) Logout(ctx context.Context, token string) error {
	claims, err := m.validate(token)
	if err != nil {
		return err
	}

	if err := m.sessions.Delete(ctx, claims.OwnerID, token); err != nil {
		return apperrors.ErrServerError.Wrap(err)
	}

	m.logger.Info("Owner logged out", "ownerId", claims.OwnerID)
	return nil
}

func (m *Manager) validate(token string) (*jwt.Claims, error) {
	claims, err := m.jwtSvc.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrTokenInvalid
	}
	return claims, nil
}

// SessionDuration 登录态有效期
func (m *Manager) SessionDuration() time.Duration {
	return m.jwtSvc.GetExpire()
}
