package service

import (
	"context"
	"testing"
	"time"

	"alpha-chat-go/internal/apperrors"
	"alpha-chat-go/internal/config"
	"alpha-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestGate(repo *MockUserRepository, policy string, now time.Time) *EntitlementGate {
	gate := NewEntitlementGate(repo, config.QuotaConfig{FreeAllowance: 10, ExhaustedPolicy: policy})
	gate.now = func() time.Time { return now }
	return gate
}

func TestAuthorize_PremiumBypassesQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(24 * time.Hour)
	repo := new(MockUserRepository)
	gate := newTestGate(repo, "reject", now)

	user := &model.User{ID: 1, IsPremium: true, PremiumUntil: &until, ChatCount: 999, QuotaResetAt: now}

	decision, err := gate.Authorize(context.Background(), user, true)
	assert.NoError(t, err)
	assert.True(t, decision.Unrestricted)
	assert.False(t, decision.Charged)
	// Premium users never touch the quota counter.
	repo.AssertNotCalled(t, "ConsumeQuota", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorize_LapsedPremiumFallsBackToQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)
	repo := new(MockUserRepository)
	repo.On("ClearPremium", mock.Anything, uint(1)).Return(nil)
	repo.On("ConsumeQuota", mock.Anything, uint(1), 0).Return(true, nil)
	gate := newTestGate(repo, "reject", now)

	user := &model.User{ID: 1, IsPremium: true, PremiumUntil: &expired, QuotaResetAt: now}

	decision, err := gate.Authorize(context.Background(), user, true)
	assert.NoError(t, err)
	assert.True(t, decision.Unrestricted)
	assert.True(t, decision.Charged)
	assert.False(t, user.IsPremium)
	repo.AssertExpectations(t)
}

func TestAuthorize_RestrictedIsFree(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(MockUserRepository)
	gate := newTestGate(repo, "reject", now)

	user := &model.User{ID: 1, ChatCount: 10, QuotaResetAt: now}

	decision, err := gate.Authorize(context.Background(), user, false)
	assert.NoError(t, err)
	assert.False(t, decision.Unrestricted)
	assert.False(t, decision.Charged)
	repo.AssertNotCalled(t, "ConsumeQuota", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorize_ReservesOneUnit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(MockUserRepository)
	repo.On("ConsumeQuota", mock.Anything, uint(1), 3).Return(true, nil)
	gate := newTestGate(repo, "reject", now)

	user := &model.User{ID: 1, ChatCount: 3, QuotaResetAt: now}

	decision, err := gate.Authorize(context.Background(), user, true)
	assert.NoError(t, err)
	assert.True(t, decision.Unrestricted)
	assert.True(t, decision.Charged)
	assert.Equal(t, 4, user.ChatCount)
	repo.AssertExpectations(t)
}

func TestAuthorize_ExhaustedRejectPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(MockUserRepository)
	gate := newTestGate(repo, "reject", now)

	user := &model.User{ID: 1, ChatCount: 10, QuotaResetAt: now}

	decision, err := gate.Authorize(context.Background(), user, true)
	assert.Nil(t, decision)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
}

func TestAuthorize_ExhaustedDowngradePolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(MockUserRepository)
	gate := newTestGate(repo, "downgrade", now)

	user := &model.User{ID: 1, ChatCount: 10, QuotaResetAt: now}

	decision, err := gate.Authorize(context.Background(), user, true)
	assert.NoError(t, err)
	assert.False(t, decision.Unrestricted)
	assert.False(t, decision.Charged)
}

func TestAuthorize_DailyReset(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	repo := new(MockUserRepository)
	repo.On("ResetQuota", mock.Anything, uint(1), now).Return(nil)
	repo.On("ConsumeQuota", mock.Anything, uint(1), 0).Return(true, nil)
	gate := newTestGate(repo, "reject", now)

	// Counter was maxed out yesterday; crossing the UTC date boundary resets it.
	user := &model.User{ID: 1, ChatCount: 10, QuotaResetAt: yesterday}

	decision, err := gate.Authorize(context.Background(), user, true)
	assert.NoError(t, err)
	assert.True(t, decision.Unrestricted)
	assert.True(t, decision.Charged)
	assert.Equal(t, 1, user.ChatCount)
	repo.AssertExpectations(t)
}

func TestAuthorize_ConcurrentConflictRetries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(MockUserRepository)
	// First attempt loses the race, a re-read shows a fresh counter, second attempt wins.
	repo.On("ConsumeQuota", mock.Anything, uint(1), 3).Return(false, nil).Once()
	repo.On("FindByID", mock.Anything, uint(1)).Return(&model.User{ID: 1, ChatCount: 4, QuotaResetAt: now}, nil).Once()
	repo.On("ConsumeQuota", mock.Anything, uint(1), 4).Return(true, nil).Once()
	gate := newTestGate(repo, "reject", now)

	user := &model.User{ID: 1, ChatCount: 3, QuotaResetAt: now}

	decision, err := gate.Authorize(context.Background(), user, true)
	assert.NoError(t, err)
	assert.True(t, decision.Charged)
	assert.Equal(t, 5, user.ChatCount)
	repo.AssertExpectations(t)
}

func TestAuthorize_ConflictRevealsExhaustion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(MockUserRepository)
	repo.On("ConsumeQuota", mock.Anything, uint(1), 9).Return(false, nil).Once()
	repo.On("FindByID", mock.Anything, uint(1)).Return(&model.User{ID: 1, ChatCount: 10, QuotaResetAt: now}, nil).Once()
	gate := newTestGate(repo, "reject", now)

	// Concurrent request consumed the last unit between read and reserve.
	user := &model.User{ID: 1, ChatCount: 9, QuotaResetAt: now}

	_, err := gate.Authorize(context.Background(), user, true)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
	repo.AssertExpectations(t)
}

func TestRefund_DelegatesToRepository(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("RefundQuota", mock.Anything, uint(7)).Return(nil)
	gate := newTestGate(repo, "reject", time.Now())

	gate.Refund(context.Background(), 7)
	repo.AssertExpectations(t)
}
