package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/model"
	"alpha-chat-go/internal/service"
	"alpha-chat-go/pkg/log"
	"alpha-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 HTTP 和 WebSocket 两种形态的聊天请求。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// ChatRequest 定义了聊天 API 的请求体结构。
type ChatRequest struct {
	Message             string              `json:"message" binding:"required"`
	History             []model.ChatMessage `json:"history"`
	RequestUnrestricted bool                `json:"requestUnrestricted"`
	ConversationID      string              `json:"conversationId"`
	Stream              bool                `json:"stream"`
}

// Chat 处理聊天请求，根据 stream 标志选择完整响应或分块流式输出。
func (h *ChatHandler) Chat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(apperrors.ErrValidation, "message is required"))
		return
	}

	svcReq := service.ChatRequest{
		Message:             req.Message,
		History:             req.History,
		RequestUnrestricted: req.RequestUnrestricted,
		ConversationID:      req.ConversationID,
	}

	if req.Stream {
		h.streamChat(c, user, svcReq)
		return
	}

	result, err := h.chatService.Chat(c.Request.Context(), user, svcReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// chunkResponseWriter 把上游转发来的分块直接写进 HTTP 响应并即时刷出。
type chunkResponseWriter struct {
	writer  gin.ResponseWriter
	flusher http.Flusher
}

func (w *chunkResponseWriter) WriteChunk(data []byte) error {
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// streamChat 以 chunked text/plain 下发回答。
// 会话 ID 通过响应头下发，必须在第一个分块之前写出。
func (h *ChatHandler) streamChat(c *gin.Context, user *model.User, req service.ChatRequest) {
	flusher, _ := c.Writer.(http.Flusher)
	w := &chunkResponseWriter{writer: c.Writer, flusher: flusher}

	started := false
	start := func(conversationID string) {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("X-Conversation-Id", conversationID)
		c.Status(http.StatusOK)
		started = true
	}

	_, err := h.chatService.StreamChat(c.Request.Context(), user, req, start, w)
	if err != nil {
		if !started {
			// 流尚未开始，仍可返回正常的错误响应
			respondError(c, err)
			return
		}
		// 流已经开始，状态码无法更改，用可见的错误标记收尾
		httpErr := apperrors.MapToHTTP(err)
		_ = w.WriteChunk([]byte(fmt.Sprintf("\n[error] %s", httpErr.Message)))
	}
}

// wsFrame 是 WebSocket 聊天的下行帧。
type wsFrame struct {
	Chunk          string `json:"chunk,omitempty"`
	Done           bool   `json:"done,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// wsChunkWriter 把上游分块包装成 JSON 帧写入 WebSocket 连接。
type wsChunkWriter struct {
	conn *websocket.Conn
}

func (w *wsChunkWriter) WriteChunk(data []byte) error {
	return w.conn.WriteJSON(wsFrame{Chunk: string(data)})
}

// HandleWS 处理一个传入的 WebSocket 聊天连接。
// 认证走查询参数携带的 token，浏览器的 WebSocket API 无法设置请求头。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	tokenString := c.Query("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{Error: "invalid or expired token", Code: "UNAUTHORIZED"})
		return
	}
	if revoked, rerr := h.userService.IsTokenRevoked(c.Request.Context(), tokenString); rerr != nil || revoked {
		c.JSON(http.StatusUnauthorized, apperrors.ErrorResponse{Error: "invalid or expired token", Code: "UNAUTHORIZED"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil || req.Message == "" {
			_ = conn.WriteJSON(wsFrame{Error: "message is required"})
			continue
		}

		// 每条消息都重新取一次用户：额度和会员状态可能在连接期间变化
		user, err := h.userService.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			_ = conn.WriteJSON(wsFrame{Error: "user no longer exists"})
			break
		}

		svcReq := service.ChatRequest{
			Message:             req.Message,
			History:             req.History,
			RequestUnrestricted: req.RequestUnrestricted,
			ConversationID:      req.ConversationID,
		}
		result, err := h.chatService.StreamChat(c.Request.Context(), user, svcReq, nil, &wsChunkWriter{conn: conn})
		if err != nil {
			httpErr := apperrors.MapToHTTP(err)
			_ = conn.WriteJSON(wsFrame{Error: httpErr.Message})
			continue
		}
		_ = conn.WriteJSON(wsFrame{Done: true, ConversationID: result.ConversationID})
	}
}
