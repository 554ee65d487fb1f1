package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Scope 订阅查询过滤条件，与 model.Subscription 上的谓词一一对应
type Scope func(db *gorm.DB) *gorm.DB

var ErrUnknownScope = errors.New("未知的订阅过滤条件")

// 调用方传入的时间统一转成 UTC，保证 sqlite 下字符串比较与时间比较一致

func Active(now time.Time) Scope {
	now = now.UTC()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("((trial_ends_at IS NOT NULL AND trial_ends_at > ?) OR ends_at IS NULL OR ends_at > ?)", now, now)
	}
}

func OnTrial(now time.Time) Scope {
	now = now.UTC()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(trial_ends_at IS NOT NULL AND trial_ends_at > ?)", now)
	}
}

func NotOnTrial(now time.Time) Scope {
	now = now.UTC()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(trial_ends_at IS NULL OR trial_ends_at <= ?)", now)
	}
}

// Recurring 未取消且不在试用期
func Recurring(now time.Time) Scope {
	notOnTrial := NotOnTrial(now)
	return func(db *gorm.DB) *gorm.DB {
		return notOnTrial(db).Where("ends_at IS NULL")
	}
}

func Cancelled() Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("ends_at IS NOT NULL")
	}
}

func NotCancelled() Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("ends_at IS NULL")
	}
}

func OnGracePeriod(now time.Time) Scope {
	now = now.UTC()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(ends_at IS NOT NULL AND ends_at > ?)", now)
	}
}

func NotOnGracePeriod(now time.Time) Scope {
	now = now.UTC()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(ends_at IS NULL OR ends_at <= ?)", now)
	}
}

func Ended(now time.Time) Scope {
	now = now.UTC()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(ends_at IS NOT NULL AND ends_at <= ?)", now)
	}
}

// ScopeByName 把接口上的 filter 参数解析成 Scope
func ScopeByName(name string, now time.Time) (Scope, error) {
	switch name {
	case "active":
		return Active(now), nil
	case "on_trial":
		return OnTrial(now), nil
	case "not_on_trial":
		return NotOnTrial(now), nil
	case "recurring":
		return Recurring(now), nil
	case "cancelled":
		return Cancelled(), nil
	case "not_cancelled":
		return NotCancelled(), nil
	case "on_grace_period":
		return OnGracePeriod(now), nil
	case "not_on_grace_period":
		return NotOnGracePeriod(now), nil
	case "ended":
		return Ended(now), nil
	default:
		return nil, ErrUnknownScope
	}
}
