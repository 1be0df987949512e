package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/config"
	"alpha-chat-go/internal/middleware"
	"alpha-chat-go/internal/model"
	"alpha-chat-go/internal/service"
	"alpha-chat-go/pkg/gemini"
	"alpha-chat-go/pkg/midtrans"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser injects an authenticated user the way the auth middleware would.
func withUser(user *model.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, user)
		c.Next()
	}
}

// stubChatService plays back a canned result or error.
// err fails before the stream starts; errAfterChunks fails after the
// chunks have already been written out.
type stubChatService struct {
	result         *service.ChatResult
	chunks         []string
	err            error
	errAfterChunks error
}

func (s *stubChatService) Chat(ctx context.Context, user *model.User, req service.ChatRequest) (*service.ChatResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubChatService) StreamChat(ctx context.Context, user *model.User, req service.ChatRequest, start func(string), w gemini.ChunkWriter) (*service.ChatResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if start != nil {
		start(s.result.ConversationID)
	}
	for _, c := range s.chunks {
		if err := w.WriteChunk([]byte(c)); err != nil {
			return nil, err
		}
	}
	if s.errAfterChunks != nil {
		return nil, s.errAfterChunks
	}
	return s.result, nil
}

// stubPaymentService plays back canned payment outcomes.
type stubPaymentService struct {
	snap      *midtrans.SnapResult
	orderID   string
	notifyErr error
}

func (s *stubPaymentService) CreateTransaction(ctx context.Context, user *model.User) (*midtrans.SnapResult, string, error) {
	return s.snap, s.orderID, nil
}

func (s *stubPaymentService) HandleNotification(ctx context.Context, payload *service.NotificationPayload) error {
	return s.notifyErr
}

func TestChatEndpoint_JSONResponse(t *testing.T) {
	chat := &stubChatService{result: &service.ChatResult{Text: "hi", ConversationID: "conv-1", Unrestricted: true}}
	h := NewChatHandler(chat, nil, nil)

	r := gin.New()
	r.POST("/chat", withUser(&model.User{ID: 1}), h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result service.ChatResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "hi", result.Text)
	assert.Equal(t, "conv-1", result.ConversationID)
}

func TestChatEndpoint_QuotaExhausted(t *testing.T) {
	chat := &stubChatService{err: apperrors.ErrQuotaExhausted}
	h := NewChatHandler(chat, nil, nil)

	r := gin.New()
	r.POST("/chat", withUser(&model.User{ID: 1}), h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","requestUnrestricted":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "QUOTA_EXHAUSTED", body.Code)
}

func TestChatEndpoint_MissingMessage(t *testing.T) {
	h := NewChatHandler(&stubChatService{}, nil, nil)

	r := gin.New()
	r.POST("/chat", withUser(&model.User{ID: 1}), h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpoint_Streaming(t *testing.T) {
	chat := &stubChatService{
		result: &service.ChatResult{Text: "hello world", ConversationID: "conv-2"},
		chunks: []string{"hello ", "world"},
	}
	h := NewChatHandler(chat, nil, nil)

	r := gin.New()
	r.POST("/chat", withUser(&model.User{ID: 1}), h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","stream":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conv-2", rec.Header().Get("X-Conversation-Id"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "hello world", rec.Body.String())
}

func TestChatEndpoint_StreamFailureBeforeStart(t *testing.T) {
	chat := &stubChatService{err: apperrors.ErrQuotaExhausted}
	h := NewChatHandler(chat, nil, nil)

	r := gin.New()
	r.POST("/chat", withUser(&model.User{ID: 1}), h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","stream":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// The gate rejects before any chunk is written, so a clean error response is possible.
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChatEndpoint_StreamFailureMidStream(t *testing.T) {
	chat := &stubChatService{
		result:         &service.ChatResult{ConversationID: "conv-3"},
		chunks:         []string{"partial "},
		errAfterChunks: apperrors.ErrUpstreamUnavailable,
	}
	h := NewChatHandler(chat, nil, nil)

	r := gin.New()
	r.POST("/chat", withUser(&model.User{ID: 1}), h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","stream":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// 流已开始，状态码无法再改，失败以可见的错误标记收尾
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial \n[error] upstream service unavailable", rec.Body.String())
}

func TestNotifyEndpoint_Success(t *testing.T) {
	h := NewPaymentHandler(&stubPaymentService{})

	r := gin.New()
	r.POST("/payments/notify", h.Notify)

	req := httptest.NewRequest(http.MethodPost, "/payments/notify", strings.NewReader(`{"order_id":"PREMIUM-abc","transaction_status":"settlement"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestNotifyEndpoint_UnknownOrder(t *testing.T) {
	h := NewPaymentHandler(&stubPaymentService{notifyErr: apperrors.ErrUnknownOrder})

	r := gin.New()
	r.POST("/payments/notify", h.Notify)

	req := httptest.NewRequest(http.MethodPost, "/payments/notify", strings.NewReader(`{"order_id":"PREMIUM-nope"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyEndpoint_MalformedBody(t *testing.T) {
	h := NewPaymentHandler(&stubPaymentService{})

	r := gin.New()
	r.POST("/payments/notify", h.Notify)

	req := httptest.NewRequest(http.MethodPost, "/payments/notify", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	h := NewUserHandler(nil, config.QuotaConfig{FreeAllowance: 10})

	r := gin.New()
	r.GET("/auth/status", withUser(&model.User{ID: 1, Username: "alice", ChatCount: 3}), h.Status)

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User      model.User `json:"user"`
		Allowance int        `json:"allowance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.User.Username)
	assert.Equal(t, 10, body.Allowance)
}

func TestCreateTokenEndpoint(t *testing.T) {
	h := NewPaymentHandler(&stubPaymentService{
		snap:    &midtrans.SnapResult{Token: "snap-token", RedirectURL: "https://pay.example/x"},
		orderID: "PREMIUM-abc",
	})

	r := gin.New()
	r.POST("/payments/token", withUser(&model.User{ID: 1}), h.CreateToken)

	req := httptest.NewRequest(http.MethodPost, "/payments/token", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "snap-token", body["paymentToken"])
	assert.Equal(t, "PREMIUM-abc", body["orderId"])
}
