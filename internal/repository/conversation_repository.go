// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"alpha-chat-go/internal/model"
	"alpha-chat-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// recentHistoryLimit 是缓存与上下文拼接使用的消息条数上限。
const recentHistoryLimit = 20

// historyCacheTTL 与访问令牌的有效期对齐。
const historyCacheTTL = 7 * 24 * time.Hour

// ConversationRepository 定义了对话与消息的持久化操作。
// MySQL 是事实来源，Redis 只缓存用于上下文拼接的最近消息。
type ConversationRepository interface {
	// ListByUser 按创建时间倒序返回用户的对话摘要。
	ListByUser(ctx context.Context, userID uint, limit int) ([]model.ConversationSummary, error)
	// Get 返回带全部消息的对话。对话不存在与归属他人统一返回
	// gorm.ErrRecordNotFound，调用方无法区分两种情况。
	Get(ctx context.Context, conversationID string, userID uint) (*model.Conversation, error)
	// VerifyOwnership 在不加载消息的情况下确认对话归属。
	VerifyOwnership(ctx context.Context, conversationID string, userID uint) error
	// Append 追加一对用户/模型消息。对话不存在时创建它，
	// 标题取首条用户消息的定长前缀。返回写入的两条消息。
	Append(ctx context.Context, conversationID string, userID uint, userText, modelText string) ([]model.Message, error)
	// RecentMessages 返回对话的最近消息，优先命中 Redis 缓存。
	RecentMessages(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
}

// titleRuneLimit 是派生对话标题的最大长度。
const titleRuneLimit = 40

type conversationRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB, rdb *redis.Client) ConversationRepository {
	return &conversationRepository{db: db, rdb: rdb}
}

// ListByUser 返回对话摘要列表。
func (r *conversationRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]model.ConversationSummary, error) {
	var conversations []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summaries = append(summaries, model.ConversationSummary{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt,
		})
	}
	return summaries, nil
}

// Get 按归属加载对话及其全部消息。
func (r *conversationRepository) Get(ctx context.Context, conversationID string, userID uint) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("messages.id ASC")
		}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// VerifyOwnership 只检查归属，不加载消息。
func (r *conversationRepository) VerifyOwnership(ctx context.Context, conversationID string, userID uint) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Append 在单个事务中写入对话（若新建）和两条消息。
func (r *conversationRepository) Append(ctx context.Context, conversationID string, userID uint, userText, modelText string) ([]model.Message, error) {
	messages := []model.Message{
		{ConversationID: conversationID, Role: model.RoleUser, Content: userText},
		{ConversationID: conversationID, Role: model.RoleModel, Content: modelText},
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conversation model.Conversation
		err := tx.Where("id = ?", conversationID).First(&conversation).Error
		if err == nil {
			if conversation.UserID != userID {
				return gorm.ErrRecordNotFound
			}
		} else if err == gorm.ErrRecordNotFound {
			conversation = model.Conversation{
				ID:     conversationID,
				UserID: userID,
				Title:  deriveTitle(userText),
			}
			if err := tx.Create(&conversation).Error; err != nil {
				return err
			}
		} else {
			return err
		}

		return tx.Create(&messages).Error
	})
	if err != nil {
		return nil, err
	}

	// 失效缓存，下次读取时从数据库带上新消息重建
	if err := r.rdb.Del(ctx, historyCacheKey(conversationID)).Err(); err != nil {
		log.Warnf("失效会话缓存失败: %v", err)
	}
	return messages, nil
}

// RecentMessages 先查缓存，未命中时回源数据库并回填。
func (r *conversationRepository) RecentMessages(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	key := historyCacheKey(conversationID)
	cached, err := r.rdb.Get(ctx, key).Result()
	if err == nil {
		var messages []model.ChatMessage
		if jsonErr := json.Unmarshal([]byte(cached), &messages); jsonErr == nil {
			return messages, nil
		}
		// 缓存损坏时当作未命中处理
	} else if err != redis.Nil {
		log.Warnf("读取会话缓存失败: %v", err)
	}

	var rows []model.Message
	dbErr := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(recentHistoryLimit).
		Find(&rows).Error
	if dbErr != nil {
		return nil, dbErr
	}

	// 倒序查询结果翻回时间顺序
	messages := make([]model.ChatMessage, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		messages = append(messages, model.ChatMessage{
			Role:      rows[i].Role,
			Content:   rows[i].Content,
			Timestamp: rows[i].CreatedAt,
		})
	}

	r.writeCache(ctx, key, messages)
	return messages, nil
}

func (r *conversationRepository) writeCache(ctx context.Context, key string, messages []model.ChatMessage) {
	if len(messages) > recentHistoryLimit {
		messages = messages[len(messages)-recentHistoryLimit:]
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key, payload, historyCacheTTL).Err(); err != nil {
		log.Warnf("写入会话缓存失败: %v", err)
	}
}

func historyCacheKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:recent", conversationID)
}

// deriveTitle 取首条用户消息的前 titleRuneLimit 个字符作为标题。
func deriveTitle(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) <= titleRuneLimit {
		return firstMessage
	}
	return string(runes[:titleRuneLimit]) + "…"
}
