package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/delivery"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/feed"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/middleware"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/service"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/view"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// 服务端推送帧类型
const (
	frameConversations = "conversations"
	frameMessages      = "messages"
	frameAck           = "ack"
	frameError         = "error"
)

// 客户端动作
const (
	actionSelect   = "select"
	actionDeselect = "deselect"
	actionSend     = "send"
)

// serverFrame 服务端推送帧
type serverFrame struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversationId,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timeout        bool        `json:"timeout,omitempty"`
	Code           int         `json:"code,omitempty"`
	Message        string      `json:"message,omitempty"`
}

// clientFrame 客户端动作帧
type clientFrame struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// ChatWSHandler WebSocket 聊天处理器
// 每条连接拥有一个独立的 ChatView：连上即订阅会话列表，select 切换消息
// 订阅，所有快照按推送帧下发。连接断开时视图关闭、订阅释放
type ChatWSHandler struct {
	feed        *feed.Feed
	chatService *service.ChatService
	uploader    delivery.Uploader
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewChatWSHandler 创建 WebSocket 聊天处理器
func NewChatWSHandler(f *feed.Feed, chatService *service.ChatService, uploader delivery.Uploader) *ChatWSHandler {
	return &ChatWSHandler{
		feed:        f,
		chatService: chatService,
		uploader:    uploader,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 跨域已由 CORS 中间件控制
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.Default(),
	}
}

// Serve 升级连接并服务一个聊天视图
func (h *ChatWSHandler) Serve(c *gin.Context) {
	owner := middleware.GetOwner(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "ownerId", owner.ID, "error", err)
		return
	}

	client := &wsClient{
		conn:    conn,
		owner:   owner,
		handler: h,
		send:    make(chan serverFrame, 16),
		closed:  make(chan struct{}),
	}

	pipeline := delivery.NewPipeline(h.chatService, h.uploader)
	client.view = view.NewChatView(h.feed, h.chatService, pipeline, owner.ID)
	client.view.OnConversations(client.pushConversations)
	client.view.OnMessages(client.pushMessages)

	h.logger.Info("Chat view connected", "ownerId", owner.ID)

	go client.writePump()
	if err := client.view.Open(c.Request.Context()); err != nil {
		client.pushError("", err)
	}
	client.readPump()
}

// wsClient 一条 WebSocket 连接
type wsClient struct {
	conn    *websocket.Conn
	owner   model.Owner
	handler *ChatWSHandler
	view    *view.ChatView
	send    chan serverFrame
	closed  chan struct{}
}

func (cl *wsClient) pushConversations(u view.ConversationsUpdate) {
	frame := serverFrame{
		Type:    frameConversations,
		Data:    u.Conversations,
		Timeout: u.Timeout,
	}
	if u.Err != nil {
		frame.Code = u.Err.Code
		frame.Message = u.Err.Message
	}
	cl.push(frame)
}

func (cl *wsClient) pushMessages(u view.MessagesUpdate) {
	frame := serverFrame{
		Type:           frameMessages,
		ConversationID: u.ConversationID,
		Data:           u.Messages,
		Timeout:        u.Timeout,
	}
	if u.Err != nil {
		frame.Code = u.Err.Code
		frame.Message = u.Err.Message
	}
	cl.push(frame)
}

func (cl *wsClient) pushError(conversationID string, err error) {
	cl.push(serverFrame{
		Type:           frameError,
		ConversationID: conversationID,
		Code:           apperrors.GetCode(err),
		Message:        apperrors.GetMessage(err),
	})
}

func (cl *wsClient) push(frame serverFrame) {
	select {
	case cl.send <- frame:
	case <-cl.closed:
	}
}

// writePump 唯一的写 goroutine，兼发心跳
func (cl *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case frame := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.closed:
			return
		}
	}
}

// readPump 读取客户端动作，连接断开时关闭视图
func (cl *wsClient) readPump() {
	defer func() {
		close(cl.closed)
		cl.view.Close()
		cl.conn.Close()
		cl.handler.logger.Info("Chat view disconnected", "ownerId", cl.owner.ID)
	}()

	cl.conn.SetReadLimit(64 << 10)
	cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.handler.logger.Warn("WebSocket read error", "ownerId", cl.owner.ID, "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			cl.pushError("", apperrors.ErrInvalidParams.Wrap(err))
			continue
		}

		cl.dispatch(frame)
	}
}

func (cl *wsClient) dispatch(frame clientFrame) {
	ctx := context.Background()

	switch frame.Action {
	case actionSelect:
		if err := cl.view.Select(ctx, frame.ConversationID); err != nil {
			cl.pushError(frame.ConversationID, err)
		}
	case actionDeselect:
		cl.view.Deselect()
	case actionSend:
		// WebSocket 通道只发文本，图片走 multipart 接口
		cl.view.SetText(frame.Content)
		sender := delivery.Sender{
			ID:   cl.owner.ID,
			Name: cl.owner.Name,
			Type: model.SenderTypePharmacyOwner,
		}
		if err := cl.view.Send(ctx, sender); err != nil {
			cl.pushError(cl.view.Selected(), err)
			return
		}
		cl.push(serverFrame{Type: frameAck, ConversationID: cl.view.Selected()})
	default:
		cl.pushError("", apperrors.ErrInvalidParams)
	}
}
