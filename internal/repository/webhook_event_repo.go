package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/billing_go_server/internal/model"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(event *model.WebhookEvent) error {
	return r.db.Create(event).Error
}

func (r *WebhookEventRepository) GetByID(id int64) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.db.Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed 记录处理完成时间，processErr 不为空时一并记下错误
func (r *WebhookEventRepository) MarkProcessed(id int64, processedAt time.Time, processErr error) error {
	fields := map[string]interface{}{
		"processed_at": processedAt.UTC(),
	}
	if processErr != nil {
		fields["processing_error"] = processErr.Error()
	}
	return r.db.Model(&model.WebhookEvent{}).Where("id = ?", id).Updates(fields).Error
}
