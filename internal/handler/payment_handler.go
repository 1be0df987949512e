package handler

import (
	"net/http"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/service"
	"alpha-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// PaymentHandler 负责处理会员购买和网关回调。
type PaymentHandler struct {
	paymentService service.PaymentService
}

// NewPaymentHandler 创建一个新的 PaymentHandler 实例。
func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreateToken 为当前用户创建一笔会员购买交易并返回支付会话。
func (h *PaymentHandler) CreateToken(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	snap, orderID, err := h.paymentService.CreateTransaction(c.Request.Context(), user)
	if err != nil {
		log.Errorf("CreateToken: failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentToken": snap.Token,
		"redirectUrl":  snap.RedirectURL,
		"orderId":      orderID,
	})
}

// Notify 处理支付网关的异步状态通知。
// 网关只认 2xx 为送达成功，处理完成后返回纯文本确认。
func (h *PaymentHandler) Notify(c *gin.Context) {
	var payload service.NotificationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, apperrors.Wrap(apperrors.ErrInvalidPayload, "malformed notification body"))
		return
	}

	if err := h.paymentService.HandleNotification(c.Request.Context(), &payload); err != nil {
		log.Warnf("Notify: notification for order '%s' rejected, error: %v", payload.OrderID, err)
		respondError(c, err)
		return
	}
	c.String(http.StatusOK, "OK")
}
