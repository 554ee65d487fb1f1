package model

import (
	"time"
)

// Billable 任何拥有 Stripe customer、通用试用期和订阅列表的实体都可以参与计费
type Billable interface {
	BillingCustomerID() string
	GenericTrialEndsAt() *time.Time
	BillingSubscriptions() []Subscription
}

// HasStripeID 是否已在 Stripe 创建 customer
func HasStripeID(b Billable) bool {
	return b.BillingCustomerID() != ""
}

// OnGenericTrial 实体自身（不绑定订阅）的试用期
func OnGenericTrial(b Billable, now time.Time) bool {
	trialEndsAt := b.GenericTrialEndsAt()
	return trialEndsAt != nil && trialEndsAt.After(now)
}

// FindSubscription 同名订阅取最新创建的一条
func FindSubscription(b Billable, name string) *Subscription {
	var found *Subscription
	subs := b.BillingSubscriptions()
	for i := range subs {
		if subs[i].Name != name {
			continue
		}
		if found == nil || subs[i].CreatedAt.After(found.CreatedAt) {
			found = &subs[i]
		}
	}
	return found
}

// Subscribed 订阅存在且有效；plan 非空时还要求套餐一致
func Subscribed(b Billable, name, plan string, now time.Time) bool {
	sub := FindSubscription(b, name)
	if sub == nil || !sub.ActiveAt(now) {
		return false
	}
	return plan == "" || sub.StripePlan == plan
}

func SubscribedToPlan(b Billable, plan, name string, now time.Time) bool {
	sub := FindSubscription(b, name)
	if sub == nil || !sub.ValidAt(now) {
		return false
	}
	return sub.StripePlan == plan
}

// OnTrial name 为空时判断通用试用期，否则判断指定订阅的试用期
func OnTrial(b Billable, name, plan string, now time.Time) bool {
	if name == "" {
		return OnGenericTrial(b, now)
	}

	sub := FindSubscription(b, name)
	if sub == nil || !sub.OnTrialAt(now) {
		return false
	}
	return plan == "" || sub.StripePlan == plan
}
