package dto

import (
	"time"

	"github.com/qs3c/billing_go_server/internal/model"
)

// CreateSubscriptionRequest 新建订阅
type CreateSubscriptionRequest struct {
	Name               string            `json:"name" binding:"required,max=100"`
	Plan               string            `json:"plan" binding:"required"`
	Quantity           int               `json:"quantity"`
	PaymentToken       string            `json:"payment_token"`
	TrialDays          int               `json:"trial_days" binding:"min=0"`
	TrialUntil         *time.Time        `json:"trial_until"`
	SkipTrial          bool              `json:"skip_trial"`
	Coupon             string            `json:"coupon"`
	BillingCycleAnchor *time.Time        `json:"billing_cycle_anchor"`
	Metadata           map[string]string `json:"metadata"`
}

// SwapPlanRequest 切换套餐
type SwapPlanRequest struct {
	Plan    string `json:"plan" binding:"required"`
	Prorate *bool  `json:"prorate"`
	Coupon  string `json:"coupon"`
}

// UpdateQuantityRequest 直接设置数量或按增量调整
type UpdateQuantityRequest struct {
	Quantity int   `json:"quantity"`
	Count    int   `json:"count"`
	Prorate  *bool `json:"prorate"`
}

// CreateCustomerRequest 在 Stripe 创建 customer
type CreateCustomerRequest struct {
	PaymentToken string            `json:"payment_token"`
	Metadata     map[string]string `json:"metadata"`
}

// UpdateCardRequest 更新默认卡片
type UpdateCardRequest struct {
	PaymentToken string `json:"payment_token" binding:"required"`
}

// ApplyCouponRequest 给 customer 应用优惠券
type ApplyCouponRequest struct {
	Coupon string `json:"coupon" binding:"required"`
}

// InvoiceForRequest 一次性账单
type InvoiceForRequest struct {
	Description string `json:"description" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"` // 最小货币单位
	Currency    string `json:"currency"`
}

// RefundRequest 按账单退款，只能退自己的账单。Amount 为空时全额退款
type RefundRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
	Amount    *int64 `json:"amount" binding:"omitempty,gt=0"`
}

// SubscriptionInfo 订阅信息（含派生状态）
type SubscriptionInfo struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	StripeID    string       `json:"stripe_id"`
	StripePlan  string       `json:"stripe_plan"`
	Quantity    int          `json:"quantity"`
	TrialEndsAt *time.Time   `json:"trial_ends_at,omitempty"`
	EndsAt      *time.Time   `json:"ends_at,omitempty"`
	Status      model.Status `json:"status"`
	CreatedAt   string       `json:"created_at"`
}

// BillingStatus 用户计费概况
type BillingStatus struct {
	StripeID       string     `json:"stripe_id,omitempty"`
	CardBrand      string     `json:"card_brand,omitempty"`
	CardLastFour   string     `json:"card_last_four,omitempty"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`
	OnGenericTrial bool       `json:"on_generic_trial"`
}

// InvoiceInfo 账单（数据来自 Stripe），Refundable 表示已有付款可以退
type InvoiceInfo struct {
	ID         string `json:"id"`
	Total      int64  `json:"total"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	PaymentID  string `json:"payment_id,omitempty"`
	Refundable bool   `json:"refundable"`
	Date       string `json:"date"`
}

// RefundInfo 退款结果
type RefundInfo struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func NewSubscriptionInfo(sub *model.Subscription, now time.Time) *SubscriptionInfo {
	return &SubscriptionInfo{
		ID:          sub.ID,
		Name:        sub.Name,
		StripeID:    sub.StripeID,
		StripePlan:  sub.StripePlan,
		Quantity:    sub.Quantity,
		TrialEndsAt: sub.TrialEndsAt,
		EndsAt:      sub.EndsAt,
		Status:      sub.StatusAt(now),
		CreatedAt:   sub.CreatedAt.Format(time.RFC3339),
	}
}
