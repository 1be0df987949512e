package service

import (
	"context"
	"errors"
	"strings"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/model"
	"alpha-chat-go/internal/repository"

	"gorm.io/gorm"
)

// searchResultLimit 限制一次全文检索返回的消息条数。
const searchResultLimit = 20

// conversationListLimit 限制会话列表单次返回的条数。
const conversationListLimit = 50

// ConversationService 定义了会话历史的查询接口。
type ConversationService interface {
	// ListConversations 返回用户的会话摘要列表，按更新时间倒序。
	ListConversations(ctx context.Context, userID uint) ([]model.ConversationSummary, error)
	// GetConversation 返回一个会话及其全部消息。
	// 会话不存在或不属于该用户时返回未找到错误。
	GetConversation(ctx context.Context, conversationID string, userID uint) (*model.Conversation, error)
	// SearchMessages 在用户自己的消息里做全文检索。
	SearchMessages(ctx context.Context, userID uint, query string) ([]model.EsMessageDocument, error)
}

// MessageSearcher 在检索索引上执行全文查询。*es.Client 实现了它。
type MessageSearcher interface {
	SearchMessages(ctx context.Context, userID uint, query string, size int) ([]model.EsMessageDocument, error)
}

type conversationService struct {
	convRepo repository.ConversationRepository
	searcher MessageSearcher
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(convRepo repository.ConversationRepository, searcher MessageSearcher) ConversationService {
	return &conversationService{convRepo: convRepo, searcher: searcher}
}

func (s *conversationService) ListConversations(ctx context.Context, userID uint) ([]model.ConversationSummary, error) {
	return s.convRepo.ListByUser(ctx, userID, conversationListLimit)
}

func (s *conversationService) GetConversation(ctx context.Context, conversationID string, userID uint) (*model.Conversation, error) {
	conv, err := s.convRepo.Get(ctx, conversationID, userID)
	if err != nil {
		// 不区分"不存在"和"属于他人"，避免泄露会话 ID 的存在性
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (s *conversationService) SearchMessages(ctx context.Context, userID uint, query string) ([]model.EsMessageDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "search query must not be empty")
	}
	if s.searcher == nil {
		return []model.EsMessageDocument{}, nil
	}
	return s.searcher.SearchMessages(ctx, userID, query, searchResultLimit)
}
