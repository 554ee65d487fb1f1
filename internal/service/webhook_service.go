package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/billing_go_server/internal/billing"
	"github.com/qs3c/billing_go_server/internal/model"
	"github.com/qs3c/billing_go_server/internal/pkg/pubsub"
	"github.com/qs3c/billing_go_server/internal/repository"
)

// WebhookService 处理 Stripe 回调。签名不通过时不做任何写入
type WebhookService struct {
	userRepo  *repository.UserRepository
	subRepo   *repository.SubscriptionRepository
	eventRepo *repository.WebhookEventRepository
	publisher EventPublisher
	secret    string
	logger    *zap.Logger
	now       func() time.Time
}

func NewWebhookService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	eventRepo *repository.WebhookEventRepository,
	publisher EventPublisher,
	secret string,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		userRepo:  userRepo,
		subRepo:   subRepo,
		eventRepo: eventRepo,
		publisher: publisher,
		secret:    secret,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle 校验签名、记录事件、分发处理。未识别的事件类型直接确认
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	if err := billing.VerifyWebhook(payload, signature, s.secret); err != nil {
		s.logger.Warn("webhook signature rejected", zap.Error(err))
		return billing.ErrInvalidSignature
	}

	evt, err := billing.ParseEvent(payload)
	if err != nil {
		return err
	}

	record := &model.WebhookEvent{
		ProviderEventID: evt.ID,
		EventType:       evt.Type,
		Payload:         string(payload),
	}
	if err := s.eventRepo.Create(record); err != nil {
		return err
	}

	handleErr := s.dispatch(ctx, evt)
	if err := s.eventRepo.MarkProcessed(record.ID, s.now(), handleErr); err != nil {
		s.logger.Error("failed to mark webhook event processed",
			zap.Int64("event_id", record.ID),
			zap.Error(err),
		)
		if handleErr == nil {
			return err
		}
	}
	return handleErr
}

func (s *WebhookService) dispatch(ctx context.Context, evt *billing.Event) error {
	switch evt.Type {
	case billing.EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, evt)
	default:
		s.logger.Debug("webhook event ignored",
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type),
		)
		return nil
	}
}

// handleSubscriptionDeleted 远端订阅被删除时把本地订阅标记为结束。
// 找不到用户或订阅、或订阅已结束时什么都不做，重复投递是安全的
func (s *WebhookService) handleSubscriptionDeleted(ctx context.Context, evt *billing.Event) error {
	deleted, err := evt.DeletedSubscription()
	if err != nil {
		s.logger.Warn("subscription deleted event without customer",
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
		return nil
	}

	user, err := s.userRepo.GetByStripeID(deleted.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	sub, err := s.subRepo.GetByUserAndStripeID(user.ID, deleted.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	now := s.now().UTC()
	if sub.EndedAt(now) {
		return nil
	}

	endsAt := now
	switch {
	case deleted.EndedAt != 0:
		endsAt = time.Unix(deleted.EndedAt, 0).UTC()
	case deleted.CanceledAt != 0:
		endsAt = time.Unix(deleted.CanceledAt, 0).UTC()
	}

	if err := s.subRepo.UpdateFields(sub.ID, map[string]interface{}{"ends_at": endsAt}); err != nil {
		return err
	}
	sub.EndsAt = &endsAt

	s.logger.Info("subscription marked cancelled from webhook",
		zap.String("event_id", evt.ID),
		zap.Int64("subscription_id", sub.ID),
		zap.Time("ends_at", endsAt),
	)
	publish(ctx, s.publisher, s.logger, &pubsub.BillingEvent{
		Type:           pubsub.EventSubscriptionCanceled,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Name:           sub.Name,
		Plan:           sub.StripePlan,
		Quantity:       sub.Quantity,
		EndsAt:         sub.EndsAt,
		OccurredAt:     now,
	})
	return nil
}
