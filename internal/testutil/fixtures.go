package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/billing_go_server/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Name:         fmt.Sprintf("testuser_%d", n),
		Email:        fmt.Sprintf("test_%d_%d@example.com", n, time.Now().UnixNano()),
		PasswordHash: &passwordHash,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithName 设置用户名
func WithName(name string) func(*model.User) {
	return func(u *model.User) {
		u.Name = name
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithPasswordHash 设置密码哈希
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithStripeID 设置 Stripe customer id
func WithStripeID(id string) func(*model.User) {
	return func(u *model.User) {
		u.StripeID = &id
	}
}

// WithCard 设置卡片展示信息
func WithCard(brand, lastFour string) func(*model.User) {
	return func(u *model.User) {
		u.CardBrand = &brand
		u.CardLastFour = &lastFour
	}
}

// WithGenericTrial 设置用户级试用期
func WithGenericTrial(endsAt time.Time) func(*model.User) {
	return func(u *model.User) {
		endsAt = endsAt.UTC()
		u.TrialEndsAt = &endsAt
	}
}

// TestSubscription 创建测试订阅
func TestSubscription(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	n := nextSeq()
	sub := &model.Subscription{
		UserID:     userID,
		Name:       "main",
		StripeID:   fmt.Sprintf("sub_test_%d", n),
		StripePlan: "monthly-10-1",
		Quantity:   1,
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithSubName 设置订阅名
func WithSubName(name string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Name = name
	}
}

// WithPlan 设置套餐
func WithPlan(plan string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.StripePlan = plan
	}
}

// WithSubStripeID 设置远端订阅 id
func WithSubStripeID(id string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.StripeID = id
	}
}

// WithQuantity 设置数量
func WithQuantity(quantity int) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Quantity = quantity
	}
}

// WithTrialEndsAt 设置试用结束时间
func WithTrialEndsAt(at time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		at = at.UTC()
		s.TrialEndsAt = &at
	}
}

// WithEndsAt 设置结束时间
func WithEndsAt(at time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		at = at.UTC()
		s.EndsAt = &at
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CreatedAt = at.UTC()
	}
}

// WithUpdatedAt 设置最后写入时间
func WithUpdatedAt(at time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.UpdatedAt = at.UTC()
	}
}
