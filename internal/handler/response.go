// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/middleware"
	"alpha-chat-go/internal/model"

	"github.com/gin-gonic/gin"
)

// respondError 把领域错误统一翻译为 HTTP 响应。
func respondError(c *gin.Context, err error) {
	httpErr := apperrors.MapToHTTP(err)
	c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
}

// currentUser 取出认证中间件放入上下文的 User 对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}
