package model

import (
	"time"
)

// Subscription 本地订阅快照。ends_at 为空表示自动续费；
// ends_at 在未来表示已取消但仍在宽限期；ends_at 在过去表示已结束。
// 记录从不物理删除。
type Subscription struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	UserID      int64      `gorm:"not null;index" json:"user_id"`
	Name        string     `gorm:"size:100;not null;index" json:"name"`
	StripeID    string     `gorm:"column:stripe_id;size:100;not null;index" json:"stripe_id"`
	StripePlan  string     `gorm:"column:stripe_plan;size:100;not null" json:"stripe_plan"`
	Quantity    int        `gorm:"not null;default:1" json:"quantity"`
	TrialEndsAt *time.Time `gorm:"index" json:"trial_ends_at,omitempty"`
	EndsAt      *time.Time `gorm:"index" json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// OnTrialAt 试用期内（与是否取消无关）
func (s *Subscription) OnTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

// ActiveAt 试用中、未设置结束时间、或结束时间在未来
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.OnTrialAt(now) || s.EndsAt == nil || s.EndsAt.After(now)
}

// Cancelled 只看是否设置了结束时间
func (s *Subscription) Cancelled() bool {
	return s.EndsAt != nil
}

func (s *Subscription) OnGracePeriodAt(now time.Time) bool {
	return s.EndsAt != nil && s.EndsAt.After(now)
}

func (s *Subscription) RecurringAt(now time.Time) bool {
	return s.EndsAt == nil && !s.OnTrialAt(now)
}

func (s *Subscription) EndedAt(now time.Time) bool {
	return s.EndsAt != nil && !s.EndsAt.After(now)
}

func (s *Subscription) OnTrial() bool       { return s.OnTrialAt(time.Now()) }
func (s *Subscription) Active() bool        { return s.ActiveAt(time.Now()) }
func (s *Subscription) OnGracePeriod() bool { return s.OnGracePeriodAt(time.Now()) }
func (s *Subscription) Recurring() bool     { return s.RecurringAt(time.Now()) }
func (s *Subscription) Ended() bool         { return s.EndedAt(time.Now()) }

// ValidAt 与 ActiveAt 相同，按套餐判断时使用
func (s *Subscription) ValidAt(now time.Time) bool {
	return s.ActiveAt(now)
}

// Status 汇总订阅当前状态，用于接口返回
type Status struct {
	Active        bool `json:"active"`
	OnTrial       bool `json:"on_trial"`
	Cancelled     bool `json:"cancelled"`
	OnGracePeriod bool `json:"on_grace_period"`
	Recurring     bool `json:"recurring"`
	Ended         bool `json:"ended"`
}

func (s *Subscription) StatusAt(now time.Time) Status {
	return Status{
		Active:        s.ActiveAt(now),
		OnTrial:       s.OnTrialAt(now),
		Cancelled:     s.Cancelled(),
		OnGracePeriod: s.OnGracePeriodAt(now),
		Recurring:     s.RecurringAt(now),
		Ended:         s.EndedAt(now),
	}
}

// FilterSubscriptions 在内存中按谓词过滤，语义与 repository 中的 SQL scope 一致
func FilterSubscriptions(subs []Subscription, keep func(*Subscription) bool) []Subscription {
	result := make([]Subscription, 0, len(subs))
	for i := range subs {
		if keep(&subs[i]) {
			result = append(result, subs[i])
		}
	}
	return result
}
