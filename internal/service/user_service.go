// Package service 包含了应用的业务逻辑层。
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
	"alpha-chat-go/pkg/hash"
	"alpha-chat-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, username, password string) (*model.User, string, error)
	Login(ctx context.Context, username, password string) (*model.User, string, error)
	GetByID(ctx context.Context, userID uint) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	// IsTokenRevoked 检查令牌是否已被登出拉黑。
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	rdb        *redis.Client
	minLen     int
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, rdb *redis.Client, authCfg config.AuthConfig) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		rdb:        rdb,
		minLen:     authCfg.MinCredentialLength,
	}
}

// Register 处理用户注册的业务逻辑。
// 用户名唯一性由数据库的唯一索引裁决：这里只做乐观插入，
// 冲突被翻译为 DuplicateHandle 上报。
func (s *userService) Register(ctx context.Context, username, password string) (*model.User, string, error) {
	if len(username) < s.minLen {
		return nil, "", apperrors.Wrap(apperrors.ErrValidation,
			fmt.Sprintf("username must be at least %d characters", s.minLen))
	}
	if len(password) < s.minLen {
		return nil, "", apperrors.Wrap(apperrors.ErrValidation,
			fmt.Sprintf("password must be at least %d characters", s.minLen))
	}

	hashedPassword, err := hash.Password(password)
	if err != nil {
		return nil, "", err
	}

	newUser := &model.User{
		Username:     username,
		Password:     hashedPassword,
		QuotaResetAt: time.Now(),
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", apperrors.ErrDuplicateHandle
		}
		return nil, "", err
	}

	accessToken, err := s.jwtManager.GenerateToken(newUser.ID, newUser.Username)
	if err != nil {
		return nil, "", err
	}
	return newUser, accessToken, nil
}

// Login 处理用户登录的业务逻辑。
// 用户名不存在与密码错误返回完全相同的错误：未命中用户时
// 仍对占位哈希执行一次 bcrypt 比较，使两条失败路径的形状一致。
func (s *userService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			hash.CheckDummy(password)
			return nil, "", apperrors.ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !hash.Check(password, user.Password) {
		return nil, "", apperrors.ErrInvalidCredentials
	}

	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return user, accessToken, nil
}

// GetByID 根据用户 ID 获取用户详细信息。
func (s *userService) GetByID(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// Logout 将令牌加入 Redis 黑名单，剩余有效期作为过期时间。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return apperrors.ErrUnauthorized
	}
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, blacklistKey(tokenString), "true", expiration).Err()
}

// IsTokenRevoked 查询令牌黑名单。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	_, err := s.rdb.Get(ctx, blacklistKey(tokenString)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func blacklistKey(tokenString string) string {
	return "blacklist:" + tokenString
}
