// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"alpha-chat-go/internal/model"
	"alpha-chat-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// orderMappingTTL 覆盖网关通知可能到达的时间窗口。
const orderMappingTTL = 48 * time.Hour

// PaymentRepository 定义了支付订单的持久化操作。
// 订单号到用户的映射在下单时同时写入 MySQL 和 Redis，
// 通知处理走 Redis 快路径，未命中时回源数据库。
type PaymentRepository interface {
	CreateOrder(ctx context.Context, order *model.PaymentOrder) error
	FindOrder(ctx context.Context, orderID string) (*model.PaymentOrder, error)
	UpdateStatus(ctx context.Context, orderID string, status model.PaymentStatus) error
	// ResolveUser 把订单号解析为用户 ID，订单未知时返回 gorm.ErrRecordNotFound。
	ResolveUser(ctx context.Context, orderID string) (uint, error)
}

type paymentRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewPaymentRepository 创建一个新的 PaymentRepository 实例。
func NewPaymentRepository(db *gorm.DB, rdb *redis.Client) PaymentRepository {
	return &paymentRepository{db: db, rdb: rdb}
}

// CreateOrder 写入订单并建立 Redis 映射。
func (r *paymentRepository) CreateOrder(ctx context.Context, order *model.PaymentOrder) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return err
	}
	key := orderMappingKey(order.OrderID)
	if err := r.rdb.Set(ctx, key, order.UserID, orderMappingTTL).Err(); err != nil {
		// 映射写入失败不阻断下单：解析时会回源数据库
		log.Warnf("写入订单映射失败, orderID: %s, err: %v", order.OrderID, err)
	}
	return nil
}

// FindOrder 按订单号查找订单。
func (r *paymentRepository) FindOrder(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 更新订单状态。
func (r *paymentRepository) UpdateStatus(ctx context.Context, orderID string, status model.PaymentStatus) error {
	return r.db.WithContext(ctx).Model(&model.PaymentOrder{}).
		Where("order_id = ?", orderID).
		Update("status", status).Error
}

// ResolveUser 先查 Redis 映射，未命中时回源订单表。
func (r *paymentRepository) ResolveUser(ctx context.Context, orderID string) (uint, error) {
	cached, err := r.rdb.Get(ctx, orderMappingKey(orderID)).Result()
	if err == nil {
		if userID, parseErr := strconv.ParseUint(cached, 10, 64); parseErr == nil {
			return uint(userID), nil
		}
	} else if err != redis.Nil {
		log.Warnf("读取订单映射失败, orderID: %s, err: %v", orderID, err)
	}

	order, err := r.FindOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return order.UserID, nil
}

func orderMappingKey(orderID string) string {
	return fmt.Sprintf("payment:order:%s", orderID)
}
