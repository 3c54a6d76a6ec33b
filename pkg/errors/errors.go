package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError // 默认返回服务器错误
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeInvalidCredentials = 10001
	CodeTokenInvalid       = 10002
	CodeTokenExpired       = 10003
	CodeSessionNotFound    = 10004

	// 会话相关 20000-20999
	CodeConversationNotFound = 20001
	CodeNoConversation       = 20002
	CodeInvalidParams        = 20003

	// 消息发送相关 21000-21999
	CodeEmptyPayload     = 21001
	CodeUnsupportedMedia = 21002
	CodePayloadTooLarge  = 21003
	CodeSendInFlight     = 21004
	CodeDeliveryFailed   = 21005

	// 订阅相关 22000-22999
	CodeSubscriptionDenied       = 22001
	CodeSubscriptionPrecondition = 22002
	CodeSubscriptionFailed       = 22003

	// 已读回执相关 23000-23999
	CodeReadMarkFailed = 23001

	// 目录服务相关 24000-24999
	CodeCatalogUnavailable = 24001

	// 系统错误 50000-50999
	CodeServerError = 50001
	CodeDBError     = 50002
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrInvalidCredentials = NewError(CodeInvalidCredentials, "邮箱或密码错误")
	ErrTokenInvalid       = NewError(CodeTokenInvalid, "Token 无效")
	ErrTokenExpired       = NewError(CodeTokenExpired, "Token 已过期")
	ErrSessionNotFound    = NewError(CodeSessionNotFound, "会话状态不存在，请重新登录")
)

// 会话相关
var (
	ErrConversationNotFound = NewError(CodeConversationNotFound, "会话不存在")
	ErrNoConversation       = NewError(CodeNoConversation, "未选择会话")
	ErrInvalidParams        = NewError(CodeInvalidParams, "参数校验失败")
)

// 消息发送相关
var (
	ErrEmptyPayload     = NewError(CodeEmptyPayload, "消息内容和图片不能同时为空")
	ErrUnsupportedMedia = NewError(CodeUnsupportedMedia, "只支持图片类型的附件")
	ErrPayloadTooLarge  = NewError(CodePayloadTooLarge, "图片大小不能超过 5MB")
	ErrSendInFlight     = NewError(CodeSendInFlight, "上一条消息正在发送中")
	ErrDeliveryFailed   = NewError(CodeDeliveryFailed, "消息发送失败，请重试")
)

// 订阅相关
var (
	ErrSubscriptionDenied       = NewError(CodeSubscriptionDenied, "没有订阅权限")
	ErrSubscriptionPrecondition = NewError(CodeSubscriptionPrecondition, "订阅前置条件不满足")
	ErrSubscriptionFailed       = NewError(CodeSubscriptionFailed, "订阅失败")
)

// 已读回执相关
var (
	ErrReadMarkFailed = NewError(CodeReadMarkFailed, "标记已读失败")
)

// 目录服务相关
var (
	ErrCatalogUnavailable = NewError(CodeCatalogUnavailable, "药品目录服务不可用")
)

// 系统相关
var (
	ErrServerError = NewError(CodeServerError, "服务器内部错误")
	ErrDBError     = NewError(CodeDBError, "数据库错误")
)
