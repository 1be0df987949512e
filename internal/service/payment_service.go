package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/config"
	"alpha-chat-go/internal/model"
	"alpha-chat-go/internal/repository"
	"alpha-chat-go/pkg/events"
	"alpha-chat-go/pkg/log"
	"alpha-chat-go/pkg/midtrans"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NotificationPayload 是支付网关回调的载荷，只取路由所需的订单号，
// 权威状态始终向网关回查。
type NotificationPayload struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// PaymentService 定义了会员购买流程的接口。
type PaymentService interface {
	// CreateTransaction 为用户创建一笔会员购买订单并返回支付会话。
	CreateTransaction(ctx context.Context, user *model.User) (*midtrans.SnapResult, string, error)
	// HandleNotification 处理网关的异步状态通知。
	HandleNotification(ctx context.Context, payload *NotificationPayload) error
}

type paymentService struct {
	paymentRepo repository.PaymentRepository
	userRepo    repository.UserRepository
	gateway     midtrans.Client
	publisher   EventPublisher
	price       int64
	premiumDays int
	now         func() time.Time
}

// NewPaymentService 创建一个新的 PaymentService 实例。
func NewPaymentService(paymentRepo repository.PaymentRepository, userRepo repository.UserRepository, gateway midtrans.Client, publisher EventPublisher, cfg config.MidtransConfig) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		userRepo:    userRepo,
		gateway:     gateway,
		publisher:   publisher,
		price:       cfg.PremiumPrice,
		premiumDays: cfg.PremiumDays,
		now:         time.Now,
	}
}

// CreateTransaction 生成订单号、落库订单映射并向网关申请支付会话。
func (s *paymentService) CreateTransaction(ctx context.Context, user *model.User) (*midtrans.SnapResult, string, error) {
	orderID := fmt.Sprintf("PREMIUM-%s", uuid.NewString())
	amount := decimal.NewFromInt(s.price)

	order := &model.PaymentOrder{
		OrderID: orderID,
		UserID:  user.ID,
		Amount:  amount,
		Status:  model.PaymentStatusCreated,
	}
	if err := s.paymentRepo.CreateOrder(ctx, order); err != nil {
		return nil, "", err
	}

	snap, err := s.gateway.CreateSnapTransaction(ctx, orderID, amount, user.Username)
	if err != nil {
		log.Errorf("创建支付会话失败, orderID: %s, err: %v", orderID, err)
		return nil, "", apperrors.ErrUpstreamUnavailable
	}
	return snap, orderID, nil
}

// HandleNotification 处理网关回调。
// 回调载荷不可信：状态以向网关回查的结果为准，签名不符直接拒绝。
func (s *paymentService) HandleNotification(ctx context.Context, payload *NotificationPayload) error {
	if payload == nil || payload.OrderID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidPayload, "notification is missing order_id")
	}

	userID, err := s.paymentRepo.ResolveUser(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUnknownOrder
		}
		return err
	}

	status, err := s.gateway.GetTransactionStatus(ctx, payload.OrderID)
	if err != nil {
		log.Errorf("回查交易状态失败, orderID: %s, err: %v", payload.OrderID, err)
		return apperrors.ErrUpstreamUnavailable
	}
	if !s.gateway.VerifySignature(status) {
		return apperrors.Wrap(apperrors.ErrInvalidPayload, "notification signature mismatch")
	}

	mapped := mapTransactionStatus(status)
	if err := s.paymentRepo.UpdateStatus(ctx, payload.OrderID, mapped); err != nil {
		return err
	}

	if mapped == model.PaymentStatusSettled {
		until := s.now().AddDate(0, 0, s.premiumDays)
		if err := s.userRepo.GrantPremium(ctx, userID, until); err != nil {
			return err
		}
		log.Infof("会员开通成功, userID: %d, orderID: %s, until: %s", userID, payload.OrderID, until.Format(time.RFC3339))
	}

	if s.publisher != nil {
		event := events.PaymentUpdatedEvent{
			Type:       events.TypePaymentUpdated,
			OrderID:    payload.OrderID,
			UserID:     userID,
			Status:     string(mapped),
			OccurredAt: s.now(),
		}
		if err := s.publisher.Publish(ctx, payload.OrderID, event); err != nil {
			log.Warnf("发布支付事件失败: %v", err)
		}
	}
	return nil
}

// mapTransactionStatus 把网关的交易状态归并为内部订单状态。
// capture 只有在反欺诈放行后才算结清。
func mapTransactionStatus(status *midtrans.TransactionStatus) model.PaymentStatus {
	switch status.TransactionStatus {
	case "settlement":
		return model.PaymentStatusSettled
	case "capture":
		if status.FraudStatus == "accept" {
			return model.PaymentStatusSettled
		}
		return model.PaymentStatusPending
	case "deny":
		return model.PaymentStatusDenied
	case "cancel":
		return model.PaymentStatusCancelled
	case "expire":
		return model.PaymentStatusExpired
	default:
		return model.PaymentStatusPending
	}
}
