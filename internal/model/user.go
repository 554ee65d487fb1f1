package model

import (
	"time"
)

// User 可计费用户，支付数据只保存在 Stripe，本地只存 customer id 和卡片展示字段
type User struct {
	ID            int64          `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"size:100;not null" json:"name"`
	Email         string         `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash  *string        `gorm:"size:255" json:"-"`
	StripeID      *string        `gorm:"column:stripe_id;size:100;index" json:"stripe_id,omitempty"`
	CardBrand     *string        `gorm:"size:50" json:"card_brand,omitempty"`
	CardLastFour  *string        `gorm:"size:4" json:"card_last_four,omitempty"`
	TrialEndsAt   *time.Time     `json:"trial_ends_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Subscriptions []Subscription `gorm:"foreignKey:UserID" json:"subscriptions,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BillingCustomerID() string {
	if u.StripeID == nil {
		return ""
	}
	return *u.StripeID
}

func (u *User) GenericTrialEndsAt() *time.Time {
	return u.TrialEndsAt
}

func (u *User) BillingSubscriptions() []Subscription {
	return u.Subscriptions
}
