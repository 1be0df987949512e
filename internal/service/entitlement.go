// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"time"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/config"
	"alpha-chat-go/internal/model"
	"alpha-chat-go/internal/repository"
	"alpha-chat-go/pkg/log"
)

// GateDecision 是额度门的裁决结果。
type GateDecision struct {
	// Unrestricted 为 true 时本次请求走无限制模式。
	Unrestricted bool
	// Charged 为 true 时已为本次请求预占一个额度单位，
	// 上游调用失败后必须调用 Refund 退还。
	Charged bool
}

// EntitlementGate 在每个聊天请求上裁决有效的响应模式并维护额度计数。
//
// 请求时从用户字段推导出三种状态：
//   - 有效会员：额度无关，无限制模式始终可用，从不计数。
//   - 试用期：计数低于每日免费额度，无限制请求预占一个单位。
//   - 额度耗尽：按配置策略拒绝（独立的 403 错误）或静默降级。
//
// 额度按 UTC 日历日重置：重置标记所在的 UTC 日期与当前不同时，
// 计数先归零再推导状态。门从不修改会员标记（到期回落除外）。
type EntitlementGate struct {
	userRepo  repository.UserRepository
	allowance int
	policy    string
	now       func() time.Time
}

// NewEntitlementGate 创建一个新的 EntitlementGate 实例。
func NewEntitlementGate(userRepo repository.UserRepository, cfg config.QuotaConfig) *EntitlementGate {
	return &EntitlementGate{
		userRepo:  userRepo,
		allowance: cfg.FreeAllowance,
		policy:    cfg.ExhaustedPolicy,
		now:       time.Now,
	}
}

// reserveAttempts 限制并发冲突下条件自增的重试次数。
const reserveAttempts = 3

// Authorize 裁决本次请求的有效模式，并在需要时预占额度。
// user 的计数字段会被同步更新以反映预占结果。
func (g *EntitlementGate) Authorize(ctx context.Context, user *model.User, requestUnrestricted bool) (*GateDecision, error) {
	now := g.now()

	// 会员到期后回落为非会员，额度规则重新生效
	if user.IsPremium && !user.HasActivePremium(now) {
		if err := g.userRepo.ClearPremium(ctx, user.ID); err != nil {
			log.Warnf("回收过期会员失败, userID: %d, err: %v", user.ID, err)
		}
		user.IsPremium = false
	}

	if user.HasActivePremium(now) {
		return &GateDecision{Unrestricted: requestUnrestricted, Charged: false}, nil
	}

	// 跨过 UTC 日界时先重置额度
	if !sameUTCDate(user.QuotaResetAt, now) {
		if err := g.userRepo.ResetQuota(ctx, user.ID, now); err != nil {
			return nil, err
		}
		user.ChatCount = 0
		user.QuotaResetAt = now
	}

	// 受限模式不计数，对所有用户始终可用
	if !requestUnrestricted {
		return &GateDecision{Unrestricted: false, Charged: false}, nil
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		if user.ChatCount >= g.allowance {
			return g.exhausted()
		}

		ok, err := g.userRepo.ConsumeQuota(ctx, user.ID, user.ChatCount)
		if err != nil {
			return nil, err
		}
		if ok {
			user.ChatCount++
			return &GateDecision{Unrestricted: true, Charged: true}, nil
		}

		// 条件更新落空说明并发请求抢先消耗了额度，重读后再试
		fresh, err := g.userRepo.FindByID(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		user.ChatCount = fresh.ChatCount
	}

	// 重试预算用尽，保守地按额度耗尽处理
	return g.exhausted()
}

func (g *EntitlementGate) exhausted() (*GateDecision, error) {
	if g.policy == "downgrade" {
		return &GateDecision{Unrestricted: false, Charged: false}, nil
	}
	return nil, apperrors.ErrQuotaExhausted
}

// Refund 退还一个预占的额度单位。
// 上游调用失败或被取消的请求不应消耗额度。
func (g *EntitlementGate) Refund(ctx context.Context, userID uint) {
	if err := g.userRepo.RefundQuota(ctx, userID); err != nil {
		log.Errorf("退还额度失败, userID: %d, err: %v", userID, err)
	}
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
