package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/middleware"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/session"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/response"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// AuthHandler 认证处理器
type AuthHandler struct {
	sessions *session.Manager
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(sessions *session.Manager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Login 药店老板登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	result, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Logout 登出，登录态销毁后 Token 立即失效
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.GetToken(c)

	if err := h.sessions.Logout(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}
