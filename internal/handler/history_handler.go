package handler

import (
	"net/http"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/service"

	"github.com/gin-gonic/gin"
)

// HistoryHandler 负责处理会话历史的查询请求。
type HistoryHandler struct {
	convService service.ConversationService
}

// NewHistoryHandler 创建一个新的 HistoryHandler 实例。
func NewHistoryHandler(convService service.ConversationService) *HistoryHandler {
	return &HistoryHandler{convService: convService}
}

// List 返回当前用户的会话摘要列表。
func (h *HistoryHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	summaries, err := h.convService.ListConversations(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// Get 返回一个会话及其全部消息。
func (h *HistoryHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	conv, err := h.convService.GetConversation(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Search 在当前用户的消息里做全文检索。
func (h *HistoryHandler) Search(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	docs, err := h.convService.SearchMessages(c.Request.Context(), user.ID, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}
