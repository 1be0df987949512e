// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"time"

	"alpha-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBodyBytes 限制写入日志的请求体长度，聊天消息可能很长。
const maxLoggedBodyBytes = 2048

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 响应体不做捕获：聊天接口是流式输出，缓冲整个响应会破坏分块下发。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// 读取并重新缓存请求体
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		c.Next()

		latency := time.Since(startTime)
		logged := requestBody
		if len(logged) > maxLoggedBodyBytes {
			logged = logged[:maxLoggedBodyBytes]
		}

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", string(logged),
		)
	}
}
