package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/delivery"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/middleware"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/service"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/response"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	chatService *service.ChatService
	uploader    delivery.Uploader
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(chatService *service.ChatService, uploader delivery.Uploader) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		uploader:    uploader,
	}
}

// ListConversations 当前老板的会话列表，最近活跃的在前
func (h *ChatHandler) ListConversations(c *gin.Context) {
	owner := middleware.GetOwner(c)

	conversations, err := h.chatService.ListConversations(c.Request.Context(), owner.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, conversations)
}

// ListMessages 某个会话的消息，最早的在前
func (h *ChatHandler) ListMessages(c *gin.Context) {
	conversationID := c.Param("id")

	conv, err := h.chatService.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.authorized(c, conv) {
		return
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, messages)
}

// SendMessage 向某个会话发送消息
// multipart 表单：content 为文本（可空），image 为图片附件（可空），两者不能同时为空
func (h *ChatHandler) SendMessage(c *gin.Context) {
	owner := middleware.GetOwner(c)
	conversationID := c.Param("id")

	conv, err := h.chatService.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.authorized(c, conv) {
		return
	}

	content := c.PostForm("content")

	var attachment *delivery.Attachment
	if fileHeader, err := c.FormFile("image"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			response.Error(c, apperrors.ErrDeliveryFailed.Wrap(err))
			return
		}
		att, err := delivery.NewAttachment(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
		file.Close()
		if err != nil {
			response.Error(c, err)
			return
		}
		attachment = att
	}

	sender := delivery.Sender{
		ID:   owner.ID,
		Name: owner.Name,
		Type: model.SenderTypePharmacyOwner,
	}

	// HTTP 请求天然一次一发，管线按请求建，发送状态由客户端自己维护
	pipeline := delivery.NewPipeline(h.chatService, h.uploader)
	if err := pipeline.Send(c.Request.Context(), conversationID, sender, content, attachment); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// MarkRead 标记会话已读，清零老板侧的未读计数
func (h *ChatHandler) MarkRead(c *gin.Context) {
	conversationID := c.Param("id")

	conv, err := h.chatService.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.authorized(c, conv) {
		return
	}

	if err := h.chatService.MarkRead(c.Request.Context(), conversationID, model.SenderTypePharmacyOwner); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// Archive 归档会话，归档后不再出现在会话列表里
func (h *ChatHandler) Archive(c *gin.Context) {
	conversationID := c.Param("id")

	conv, err := h.chatService.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.authorized(c, conv) {
		return
	}

	if err := h.chatService.Archive(c.Request.Context(), conversationID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// authorized 校验会话属于当前登录的老板
func (h *ChatHandler) authorized(c *gin.Context, conv *model.Conversation) bool {
	owner := middleware.GetOwner(c)
	if conv.PharmacyOwnerID != owner.ID {
		response.Error(c, apperrors.ErrConversationNotFound)
		return false
	}
	return true
}
