package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hadi-Haidar/pharmacy-owners/internal/model"
	"github.com/Hadi-Haidar/pharmacy-owners/internal/service"
	apperrors "github.com/Hadi-Haidar/pharmacy-owners/pkg/errors"
	"github.com/Hadi-Haidar/pharmacy-owners/pkg/snowflake"
)

// APIResponse 用于解析响应体
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type memConversationStore struct {
	mu   sync.Mutex
	byID map[string]*model.Conversation
}

func (f *memConversationStore) QueryByOwner(ctx context.Context, ownerID string, status model.ConversationStatus, limit int) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, conv := range f.byID {
		if conv.PharmacyOwnerID == ownerID && conv.Status == status {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *memConversationStore) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.byID[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	clone := *conv
	return &clone, nil
}

func (f *memConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[conv.ID] = conv
	return nil
}

func (f *memConversationStore) Archive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = model.ConversationStatusArchived
	return nil
}

func (f *memConversationStore) MarkRead(ctx context.Context, id string, readerType model.SenderType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if readerType == model.SenderTypePharmacyOwner {
		f.byID[id].UnreadCountPharmacyOwner = 0
	} else {
		f.byID[id].UnreadCountCustomer = 0
	}
	return nil
}

type memMessageStore struct {
	mu      sync.Mutex
	byConv  map[string][]model.Message
	nextAt  time.Time
	created int
}

func (f *memMessageStore) QueryByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byConv[conversationID], nil
}

func (f *memMessageStore) Create(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAt = f.nextAt.Add(time.Second)
	msg.CreatedAt = f.nextAt
	f.byConv[msg.ConversationID] = append(f.byConv[msg.ConversationID], *msg)
	f.created++
	return nil
}

type noopPublisher struct{}

func (noopPublisher) ConversationChanged(string) {}
func (noopPublisher) MessageCreated(string)      {}

type memUploader struct{}

func (memUploader) Store(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	return "http://localhost:8080/uploads/stored.png", nil
}

type chatTestEnv struct {
	router *gin.Engine
	convs  *memConversationStore
	msgs   *memMessageStore
}

// setupChatTest 用内存存储搭一个带鉴权上下文的聊天路由
func setupChatTest(t *testing.T, owner model.Owner) *chatTestEnv {
	t.Helper()

	sf, err := snowflake.NewNode(1)
	require.NoError(t, err)

	convs := &memConversationStore{byID: make(map[string]*model.Conversation)}
	msgs := &memMessageStore{byConv: make(map[string][]model.Message), nextAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	chatService := service.NewChatService(convs, msgs, noopPublisher{}, sf)
	chatHandler := NewChatHandler(chatService, memUploader{})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("owner", owner)
		c.Set("pharmacy", model.Pharmacy{ID: "ph-1", Name: "Central Pharmacy"})
		c.Next()
	})
	chat := r.Group("/api/v1/chat")
	{
		chat.GET("/conversations", chatHandler.ListConversations)
		chat.GET("/conversations/:id/messages", chatHandler.ListMessages)
		chat.POST("/conversations/:id/messages", chatHandler.SendMessage)
		chat.PATCH("/conversations/:id/read", chatHandler.MarkRead)
		chat.PATCH("/conversations/:id/archive", chatHandler.Archive)
	}

	return &chatTestEnv{router: r, convs: convs, msgs: msgs}
}

func (env *chatTestEnv) seed(conv *model.Conversation) {
	env.convs.byID[conv.ID] = conv
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body io.Reader, contentType string) APIResponse {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var testOwner = model.Owner{ID: "owner-1", Name: "Hadi", Email: "hadi@pharmacy.test"}

func TestChatHandler_ListConversations_Ordered(t *testing.T) {
	env := setupChatTest(t, testOwner)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	env.seed(&model.Conversation{ID: "c-old", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive, LastMessageAt: base})
	env.seed(&model.Conversation{ID: "c-new", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive, LastMessageAt: base.Add(time.Hour)})
	env.seed(&model.Conversation{ID: "c-other", PharmacyOwnerID: "owner-2", Status: model.ConversationStatusActive, LastMessageAt: base})

	resp := doRequest(t, env.router, http.MethodGet, "/api/v1/chat/conversations", nil, "")
	require.Equal(t, apperrors.CodeSuccess, resp.Code)

	var list []model.Conversation
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 2, "只应该返回当前老板的会话")
	assert.Equal(t, "c-new", list[0].ID, "最近活跃的会话在前")
}

func TestChatHandler_SendTextMessage(t *testing.T) {
	env := setupChatTest(t, testOwner)
	env.seed(&model.Conversation{ID: "conv-1", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("content", "Yes, in stock")
	form.Close()

	resp := doRequest(t, env.router, http.MethodPost, "/api/v1/chat/conversations/conv-1/messages", &buf, form.FormDataContentType())
	require.Equal(t, apperrors.CodeSuccess, resp.Code, "message: %s", resp.Message)

	messages := env.msgs.byConv["conv-1"]
	require.Len(t, messages, 1)
	assert.Equal(t, "Yes, in stock", messages[0].Content)
	assert.Equal(t, model.SenderTypePharmacyOwner, messages[0].SenderType)
	assert.Equal(t, "owner-1", messages[0].SenderID)
}

func TestChatHandler_SendImageMessage(t *testing.T) {
	env := setupChatTest(t, testOwner)
	env.seed(&model.Conversation{ID: "conv-1", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="image"; filename="photo.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	part.Write([]byte("fake-png"))
	form.Close()

	resp := doRequest(t, env.router, http.MethodPost, "/api/v1/chat/conversations/conv-1/messages", &buf, form.FormDataContentType())
	require.Equal(t, apperrors.CodeSuccess, resp.Code, "message: %s", resp.Message)

	messages := env.msgs.byConv["conv-1"]
	require.Len(t, messages, 1)
	assert.Equal(t, "http://localhost:8080/uploads/stored.png", messages[0].ImageURL)
}

func TestChatHandler_SendEmptyMessage(t *testing.T) {
	env := setupChatTest(t, testOwner)
	env.seed(&model.Conversation{ID: "conv-1", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("content", "   ")
	form.Close()

	resp := doRequest(t, env.router, http.MethodPost, "/api/v1/chat/conversations/conv-1/messages", &buf, form.FormDataContentType())
	assert.Equal(t, apperrors.CodeEmptyPayload, resp.Code)
	assert.Equal(t, 0, env.msgs.created)
}

func TestChatHandler_CrossOwnerAccessDenied(t *testing.T) {
	env := setupChatTest(t, testOwner)
	env.seed(&model.Conversation{ID: "conv-x", PharmacyOwnerID: "owner-2", Status: model.ConversationStatusActive})

	// 别的老板的会话对当前老板表现为不存在
	resp := doRequest(t, env.router, http.MethodGet, "/api/v1/chat/conversations/conv-x/messages", nil, "")
	assert.Equal(t, apperrors.CodeConversationNotFound, resp.Code)

	resp = doRequest(t, env.router, http.MethodPatch, "/api/v1/chat/conversations/conv-x/read", nil, "")
	assert.Equal(t, apperrors.CodeConversationNotFound, resp.Code)
}

func TestChatHandler_MarkRead(t *testing.T) {
	env := setupChatTest(t, testOwner)
	env.seed(&model.Conversation{ID: "conv-1", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive, UnreadCountPharmacyOwner: 5})

	resp := doRequest(t, env.router, http.MethodPatch, "/api/v1/chat/conversations/conv-1/read", nil, "")
	require.Equal(t, apperrors.CodeSuccess, resp.Code)
	assert.Equal(t, 0, env.convs.byID["conv-1"].UnreadCountPharmacyOwner)
}

func TestChatHandler_Archive(t *testing.T) {
	env := setupChatTest(t, testOwner)
	env.seed(&model.Conversation{ID: "conv-1", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive})

	resp := doRequest(t, env.router, http.MethodPatch, "/api/v1/chat/conversations/conv-1/archive", nil, "")
	require.Equal(t, apperrors.CodeSuccess, resp.Code)
	assert.Equal(t, model.ConversationStatusArchived, env.convs.byID["conv-1"].Status)

	// 归档后列表为空
	listResp := doRequest(t, env.router, http.MethodGet, "/api/v1/chat/conversations", nil, "")
	var list []model.Conversation
	require.NoError(t, json.Unmarshal(listResp.Data, &list))
	assert.Empty(t, list)
}

func TestChatHandler_ListMessages_Ordered(t *testing.T) {
	env := setupChatTest(t, testOwner)
	env.seed(&model.Conversation{ID: "conv-1", PharmacyOwnerID: "owner-1", Status: model.ConversationStatusActive})
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	env.msgs.byConv["conv-1"] = []model.Message{
		{ID: "m2", ConversationID: "conv-1", CreatedAt: base.Add(time.Minute)},
		{ID: "m1", ConversationID: "conv-1", CreatedAt: base},
	}

	resp := doRequest(t, env.router, http.MethodGet, "/api/v1/chat/conversations/conv-1/messages", nil, "")
	require.Equal(t, apperrors.CodeSuccess, resp.Code)

	var list []model.Message
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID, "最早的消息在前")
}
