package handler

import (
	"net/http"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/config"
	"alpha-chat-go/internal/service"
	"alpha-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理所有与账号相关的 API 请求。
type UserHandler struct {
	userService service.UserService
	allowance   int
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService, quotaCfg config.QuotaConfig) *UserHandler {
	return &UserHandler{userService: userService, allowance: quotaCfg.FreeAllowance}
}

// CredentialsRequest 定义了注册和登录共用的请求体结构。
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 是注册和登录成功后的响应体。
type AuthResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    AuthPayload `json:"data"`
}

// AuthPayload 携带用户信息和访问令牌。
type AuthPayload struct {
	User  interface{} `json:"user"`
	Token string      `json:"token"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	// 绑定并验证 JSON 请求体
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		respondError(c, apperrors.Wrap(apperrors.ErrValidation, "username and password are required"))
		return
	}

	user, token, err := h.userService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		log.Warnf("Register: registration failed for '%s', error: %v", req.Username, err)
		respondError(c, err)
		return
	}

	log.Infof("User '%s' registered successfully", user.Username)
	c.JSON(http.StatusCreated, AuthResponse{
		Code:    http.StatusCreated,
		Message: "User registered successfully",
		Data:    AuthPayload{User: user, Token: token},
	})
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		respondError(c, apperrors.Wrap(apperrors.ErrValidation, "username and password are required"))
		return
	}

	user, token, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		log.Warnf("Login: login failed for '%s', error: %v", req.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Code:    http.StatusOK,
		Message: "Login successful",
		Data:    AuthPayload{User: user, Token: token},
	})
}

// Status 返回当前认证用户的账号信息。
// 认证中间件已经把数据库中的最新状态放进了上下文。
func (h *UserHandler) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "allowance": h.allowance})
}

// Logout 吊销当前访问令牌。
func (h *UserHandler) Logout(c *gin.Context) {
	tokenValue, exists := c.Get("token")
	tokenString, _ := tokenValue.(string)
	if !exists || tokenString == "" {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		log.Errorf("Logout: failed to revoke token, error: %v", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Logged out"})
}
