// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/service"
	"alpha-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// ContextUserKey 是完整 User 对象在 Gin 上下文中的键。
const ContextUserKey = "user"

// ContextClaimsKey 是 JWT claims 在 Gin 上下文中的键。
const ContextClaimsKey = "claims"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它从请求头提取 token，依次校验签名、吊销名单和用户存在性，
// 并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		// 登出后的 token 在过期前被列入吊销名单
		revoked, err := userService.IsTokenRevoked(c.Request.Context(), tokenString)
		if err != nil || revoked {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		// 用 claims 中的用户 ID 取回完整的用户信息，
		// 额度计数和会员状态必须以数据库为准
		user, err := userService.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			abortUnauthorized(c, "user no longer exists")
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextClaimsKey, claims)
		c.Set("token", tokenString)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.ErrorResponse{
		Error: message,
		Code:  "UNAUTHORIZED",
	})
}
