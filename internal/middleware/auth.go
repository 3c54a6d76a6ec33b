package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/session"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/response"
)

const (
	ctxKeyOwner    = "owner"
	ctxKeyPharmacy = "pharmacy"
	ctxKeyToken    = "access_token"
)

// SessionAuth 登录态认证中间件
// Token 校验通过还要求 Redis 里有活跃登录态，登出即失效
func SessionAuth(manager *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c.GetHeader("Authorization"))
		if token == "" {
			// WebSocket 升级请求没法带自定义 header，退回 query 参数
			token = c.Query("token")
		}
		if token == "" {
			response.Unauthorized(c)
			c.Abort()
			return
		}

		sess, err := manager.Get(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ctxKeyOwner, sess.Owner)
		c.Set(ctxKeyPharmacy, sess.Pharmacy)
		c.Set(ctxKeyToken, token)
		c.Next()
	}
}

// extractToken 从 Authorization header 提取 token
func extractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}

// GetOwner 从 context 获取当前登录的药店老板
func GetOwner(c *gin.Context) model.Owner {
	owner, exists := c.Get(ctxKeyOwner)
	if !exists {
		return model.Owner{}
	}
	return owner.(model.Owner)
}

// GetPharmacy 从 context 获取当前登录老板的药店
func GetPharmacy(c *gin.Context) model.Pharmacy {
	pharmacy, exists := c.Get(ctxKeyPharmacy)
	if !exists {
		return model.Pharmacy{}
	}
	return pharmacy.(model.Pharmacy)
}

// GetToken 从 context 获取当前请求携带的 token
func GetToken(c *gin.Context) string {
	token, exists := c.Get(ctxKeyToken)
	if !exists {
		return ""
	}
	return token.(string)
}
