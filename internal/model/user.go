// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// User 对应于数据库中的 'users' 表。
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	// Password 存储 bcrypt 哈希，永远不会出现在 API 响应中。
	Password string `gorm:"type:varchar(255);not null" json:"-"`
	// IsPremium 标记用户是否已付费解锁无限制模式。
	// 该字段只由支付回调流程翻转，额度逻辑从不修改它。
	IsPremium bool `gorm:"not null;default:false" json:"isPremium"`
	// PremiumUntil 是会员到期时间，nil 表示从未付费。
	PremiumUntil *time.Time `json:"premiumUntil,omitempty"`
	// ChatCount 是免费额度内已消耗的无限制模式请求数。
	ChatCount int `gorm:"not null;default:0" json:"usageCount"`
	// QuotaResetAt 记录上一次额度归零的时间，按 UTC 日历日比较。
	QuotaResetAt time.Time `json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// HasActivePremium 判断用户在给定时刻是否拥有有效会员。
// 会员到期后等同于非会员，额度规则重新生效。
func (u *User) HasActivePremium(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	if u.PremiumUntil == nil {
		return true
	}
	return now.Before(*u.PremiumUntil)
}
