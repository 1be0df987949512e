// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"time"

	"alpha-chat-go/internal/model"

	"gorm.io/gorm"
)

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, userID uint) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	// ConsumeQuota 以条件更新的方式消耗一个额度单位：
	// 只有当前计数仍等于 observed 时更新才会生效并返回 true。
	// 两个并发请求读到同一个计数时，只有一个能成功预占。
	ConsumeQuota(ctx context.Context, userID uint, observed int) (bool, error)
	// RefundQuota 在上游调用失败或被取消时退还一个额度单位。
	RefundQuota(ctx context.Context, userID uint) error
	// ResetQuota 将计数归零并推进重置标记。
	ResetQuota(ctx context.Context, userID uint, resetAt time.Time) error
	// GrantPremium 翻转会员标记、设置到期时间并清零额度计数。
	// 这是唯一允许修改会员标记的写入路径。
	GrantPremium(ctx context.Context, userID uint, until time.Time) error
	// ClearPremium 在会员到期后将标记翻回 false。
	ClearPremium(ctx context.Context, userID uint) error
}

// userRepository 是 UserRepository 接口的 GORM 实现。
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 在数据库中创建一个新的用户记录。
// 用户名冲突由数据库的唯一索引裁决，应用层不做预查询。
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByUsername 根据用户名从数据库中查找一个用户。
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID 根据用户 ID 从数据库中查找一个用户。
func (r *userRepository) FindByID(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update 更新数据库中一个已存在的用户记录。
func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// ConsumeQuota 执行带条件的原子自增。
func (r *userRepository) ConsumeQuota(ctx context.Context, userID uint, observed int) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND chat_count = ?", userID, observed).
		UpdateColumn("chat_count", observed+1)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// RefundQuota 退还一个额度单位，计数不会低于 0。
func (r *userRepository) RefundQuota(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("chat_count", gorm.Expr("GREATEST(chat_count - 1, 0)")).Error
}

// ResetQuota 将计数归零并记录重置时间。
func (r *userRepository) ResetQuota(ctx context.Context, userID uint, resetAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"chat_count":     0,
			"quota_reset_at": resetAt,
		}).Error
}

// GrantPremium 原子地授予会员并清零额度计数。
func (r *userRepository) GrantPremium(ctx context.Context, userID uint, until time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_premium":    true,
			"premium_until": until,
			"chat_count":    0,
		}).Error
}

// ClearPremium 将到期的会员标记翻回 false，保留到期时间以便追溯。
func (r *userRepository) ClearPremium(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("is_premium", false).Error
}
