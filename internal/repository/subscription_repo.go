package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/billing_go_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByID(id int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByStripeID(stripeID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("stripe_id = ?", stripeID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByUserAndStripeID 远端订阅 id 必须同时属于该用户
func (r *SubscriptionRepository) GetByUserAndStripeID(userID int64, stripeID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("user_id = ? AND stripe_id = ?", userID, stripeID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindByUserAndName 同名订阅可能有多条，取最新一条
func (r *SubscriptionRepository) FindByUserAndName(userID int64, name string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("user_id = ? AND name = ?", userID, name).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUser 获取用户的订阅列表，可叠加过滤条件
func (r *SubscriptionRepository) ListByUser(userID int64, scopes ...Scope) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.query(scopes).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) Exists(userID int64, scopes ...Scope) (bool, error) {
	var count int64
	err := r.query(scopes).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *SubscriptionRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

// ListEndedBetween 结束时间落在 (from, to] 内的订阅。
// 在 (from, to] 内才写入、结束时间早于 from 的记录（迟到的 webhook）也一并返回。
func (r *SubscriptionRepository) ListEndedBetween(from, to time.Time) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	from, to = from.UTC(), to.UTC()
	err := r.db.Where("ends_at IS NOT NULL AND ends_at <= ? AND (ends_at > ? OR (updated_at > ? AND updated_at <= ?))",
		to, from, from, to).
		Order("ends_at ASC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) query(scopes []Scope) *gorm.DB {
	q := r.db.Model(&model.Subscription{})
	for _, scope := range scopes {
		q = scope(q)
	}
	return q
}
