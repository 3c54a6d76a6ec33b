package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应（从 AppError 生成）
func Error(c *gin.Context, err error) {
	c.JSON(http.StatusOK, Response{
		Code:    apperrors.GetCode(err),
		Message: apperrors.GetMessage(err),
		Data:    nil,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    apperrors.CodeTokenInvalid,
		Message: apperrors.ErrTokenInvalid.Message,
		Data:    nil,
	})
}
