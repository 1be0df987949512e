// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus 表示支付订单的状态，取值与网关通知的 transaction_status 对齐。
type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSettled   PaymentStatus = "settled"
	PaymentStatusDenied    PaymentStatus = "denied"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// PaymentOrder 对应于数据库中的 'payment_orders' 表。
// 订单与用户的映射在下单时写入这里，回调解析不再依赖订单号的字符串格式。
type PaymentOrder struct {
	OrderID   string          `gorm:"type:varchar(64);primaryKey" json:"orderId"`
	UserID    uint            `gorm:"index;not null" json:"userId"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status    PaymentStatus   `gorm:"type:varchar(20);not null;default:'created'" json:"status"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PaymentOrder) TableName() string {
	return "payment_orders"
}
