package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/billing_go_server/config"
	"github.com/qs3c/billing_go_server/internal/billing"
	"github.com/qs3c/billing_go_server/internal/model"
	"github.com/qs3c/billing_go_server/internal/model/dto"
	"github.com/qs3c/billing_go_server/internal/pkg/pubsub"
	"github.com/qs3c/billing_go_server/internal/repository"
)

var (
	ErrSubscriptionNotFound = errors.New("订阅不存在")
	ErrNotOnGracePeriod     = errors.New("订阅不在宽限期内，无法恢复")
)

// SubscriptionService 订阅的变更操作都是先调 Stripe，成功后再写一次本地
type SubscriptionService struct {
	userRepo  *repository.UserRepository
	subRepo   *repository.SubscriptionRepository
	provider  billing.Provider
	publisher EventPublisher
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewSubscriptionService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	provider billing.Provider,
	publisher EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		userRepo:  userRepo,
		subRepo:   subRepo,
		provider:  provider,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Create 新建订阅。用户还没有 Stripe customer 时先创建（带上卡片 token），
// 已有 customer 且传了 token 时更新卡片
func (s *SubscriptionService) Create(ctx context.Context, userID int64, req *dto.CreateSubscriptionRequest) (*model.Subscription, error) {
	user, err := getUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	provider := connected(s.provider, s.cfg)
	if !model.HasStripeID(user) {
		if err := createCustomer(ctx, s.userRepo, provider, user, req.PaymentToken, nil); err != nil {
			return nil, err
		}
	} else if req.PaymentToken != "" {
		if err := updateCard(ctx, s.userRepo, provider, user, req.PaymentToken); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	trialEnd := trialEndFor(req, now)

	var anchor *time.Time
	if req.BillingCycleAnchor != nil {
		a := req.BillingCycleAnchor.UTC()
		anchor = &a
	}

	remote, err := provider.CreateSubscription(ctx, billing.CreateSubscriptionRequest{
		CustomerID:            user.BillingCustomerID(),
		Plan:                  req.Plan,
		Quantity:              quantity,
		TrialEnd:              trialEnd,
		Coupon:                req.Coupon,
		BillingCycleAnchor:    anchor,
		ApplicationFeePercent: s.cfg.Stripe.ApplicationFee(),
		TaxRates:              s.cfg.Stripe.TaxRates,
		Metadata:              req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		UserID:      user.ID,
		Name:        req.Name,
		StripeID:    remote.ID,
		StripePlan:  req.Plan,
		Quantity:    quantity,
		TrialEndsAt: trialEnd,
	}
	if err := s.subRepo.Create(sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription created",
		zap.Int64("user_id", user.ID),
		zap.Int64("subscription_id", sub.ID),
		zap.String("name", sub.Name),
		zap.String("plan", sub.StripePlan),
		zap.Int("quantity", sub.Quantity),
	)
	s.publish(ctx, pubsub.EventSubscriptionCreated, sub)
	return sub, nil
}

// trialEndFor skip_trial 优先，其次是明确的结束时间，最后是天数
func trialEndFor(req *dto.CreateSubscriptionRequest, now time.Time) *time.Time {
	switch {
	case req.SkipTrial:
		return nil
	case req.TrialUntil != nil:
		t := req.TrialUntil.UTC()
		return &t
	case req.TrialDays > 0:
		t := now.AddDate(0, 0, req.TrialDays)
		return &t
	default:
		return nil
	}
}

// Swap 切换套餐。试用中的订阅保留试用结束时间，否则试用立即结束
func (s *SubscriptionService) Swap(ctx context.Context, userID int64, name string, req *dto.SwapPlanRequest) (*model.Subscription, error) {
	sub, err := s.Get(userID, name)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var trialEnd *time.Time
	if sub.OnTrialAt(now) {
		trialEnd = sub.TrialEndsAt
	}
	prorate := true
	if req.Prorate != nil {
		prorate = *req.Prorate
	}

	_, err = connected(s.provider, s.cfg).SwapPlan(ctx, billing.SwapPlanRequest{
		SubscriptionID: sub.StripeID,
		Plan:           req.Plan,
		Quantity:       sub.Quantity,
		Prorate:        prorate,
		TrialEnd:       trialEnd,
		Coupon:         req.Coupon,
	})
	if err != nil {
		return nil, err
	}

	if err := s.subRepo.UpdateFields(sub.ID, map[string]interface{}{"stripe_plan": req.Plan}); err != nil {
		return nil, err
	}
	sub.StripePlan = req.Plan

	s.publish(ctx, pubsub.EventSubscriptionSwapped, sub)
	return sub, nil
}

// IncrementQuantity count 为 0 时按 1 处理
func (s *SubscriptionService) IncrementQuantity(ctx context.Context, userID int64, name string, req *dto.UpdateQuantityRequest) (*model.Subscription, error) {
	sub, err := s.Get(userID, name)
	if err != nil {
		return nil, err
	}
	return s.updateQuantity(ctx, sub, sub.Quantity+countOrOne(req.Count), req)
}

// DecrementQuantity 本地不做下限检查，是否允许由 Stripe 决定
func (s *SubscriptionService) DecrementQuantity(ctx context.Context, userID int64, name string, req *dto.UpdateQuantityRequest) (*model.Subscription, error) {
	sub, err := s.Get(userID, name)
	if err != nil {
		return nil, err
	}
	return s.updateQuantity(ctx, sub, sub.Quantity-countOrOne(req.Count), req)
}

func (s *SubscriptionService) UpdateQuantity(ctx context.Context, userID int64, name string, req *dto.UpdateQuantityRequest) (*model.Subscription, error) {
	sub, err := s.Get(userID, name)
	if err != nil {
		return nil, err
	}
	return s.updateQuantity(ctx, sub, req.Quantity, req)
}

func (s *SubscriptionService) updateQuantity(ctx context.Context, sub *model.Subscription, quantity int, req *dto.UpdateQuantityRequest) (*model.Subscription, error) {
	prorate := true
	if req.Prorate != nil {
		prorate = *req.Prorate
	}

	_, err := connected(s.provider, s.cfg).UpdateQuantity(ctx, sub.StripeID, quantity, prorate)
	if err != nil {
		return nil, err
	}

	if err := s.subRepo.UpdateFields(sub.ID, map[string]interface{}{"quantity": quantity}); err != nil {
		return nil, err
	}
	sub.Quantity = quantity

	s.publish(ctx, pubsub.EventQuantityUpdated, sub)
	return sub, nil
}

func countOrOne(count int) int {
	if count == 0 {
		return 1
	}
	return count
}

// Cancel 到期取消。试用中时宽限期对齐试用结束时间，否则取 Stripe 返回的 cancel_at
func (s *SubscriptionService) Cancel(ctx context.Context, userID int64, name string) (*model.Subscription, error) {
	sub, err := s.Get(userID, name)
	if err != nil {
		return nil, err
	}

	remote, err := connected(s.provider, s.cfg).CancelSubscription(ctx, sub.StripeID, true)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var endsAt time.Time
	switch {
	case sub.OnTrialAt(now):
		endsAt = sub.TrialEndsAt.UTC()
	case remote.CancelAt != nil:
		endsAt = remote.CancelAt.UTC()
	default:
		endsAt = now
	}

	return s.markEnded(ctx, sub, endsAt)
}

// CancelNow 立即取消，ends_at 记为当前时间
func (s *SubscriptionService) CancelNow(ctx context.Context, userID int64, name string) (*model.Subscription, error) {
	sub, err := s.Get(userID, name)
	if err != nil {
		return nil, err
	}

	if _, err := connected(s.provider, s.cfg).CancelSubscription(ctx, sub.StripeID, false); err != nil {
		return nil, err
	}

	return s.markEnded(ctx, sub, s.now().UTC())
}

func (s *SubscriptionService) markEnded(ctx context.Context, sub *model.Subscription, endsAt time.Time) (*model.Subscription, error) {
	if err := s.subRepo.UpdateFields(sub.ID, map[string]interface{}{"ends_at": endsAt}); err != nil {
		return nil, err
	}
	sub.EndsAt = &endsAt

	s.logger.Info("subscription cancelled",
		zap.Int64("subscription_id", sub.ID),
		zap.Time("ends_at", endsAt),
	)
	s.publish(ctx, pubsub.EventSubscriptionCanceled, sub)
	return sub, nil
}

// Resume 只能恢复宽限期内的订阅。试用结束时间不动，未过期的试用随之恢复
func (s *SubscriptionService) Resume(ctx context.Context, userID int64, name string) (*model.Subscription, error) {
	sub, err := s.Get(userID, name)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !sub.OnGracePeriodAt(now) {
		return nil, ErrNotOnGracePeriod
	}

	var trialEnd *time.Time
	if sub.OnTrialAt(now) {
		trialEnd = sub.TrialEndsAt
	}

	_, err = connected(s.provider, s.cfg).ResumeSubscription(ctx, billing.ResumeRequest{
		SubscriptionID: sub.StripeID,
		Plan:           sub.StripePlan,
		TrialEnd:       trialEnd,
	})
	if err != nil {
		return nil, err
	}

	if err := s.subRepo.UpdateFields(sub.ID, map[string]interface{}{"ends_at": nil}); err != nil {
		return nil, err
	}
	sub.EndsAt = nil

	s.publish(ctx, pubsub.EventSubscriptionResumed, sub)
	return sub, nil
}

// Get 按名称取最新的一条订阅
func (s *SubscriptionService) Get(userID int64, name string) (*model.Subscription, error) {
	sub, err := s.subRepo.FindByUserAndName(userID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// List filter 为空时返回全部
func (s *SubscriptionService) List(userID int64, filter string) ([]*model.Subscription, error) {
	if filter == "" {
		return s.subRepo.ListByUser(userID)
	}

	scope, err := repository.ScopeByName(filter, s.now())
	if err != nil {
		return nil, err
	}
	return s.subRepo.ListByUser(userID, scope)
}

func (s *SubscriptionService) Subscribed(userID int64, name, plan string) (bool, error) {
	user, err := s.billable(userID)
	if err != nil {
		return false, err
	}
	return model.Subscribed(user, name, plan, s.now()), nil
}

func (s *SubscriptionService) SubscribedToPlan(userID int64, plan, name string) (bool, error) {
	user, err := s.billable(userID)
	if err != nil {
		return false, err
	}
	return model.SubscribedToPlan(user, plan, name, s.now()), nil
}

func (s *SubscriptionService) OnTrial(userID int64, name, plan string) (bool, error) {
	user, err := s.billable(userID)
	if err != nil {
		return false, err
	}
	return model.OnTrial(user, name, plan, s.now()), nil
}

func (s *SubscriptionService) OnGenericTrial(userID int64) (bool, error) {
	user, err := getUser(s.userRepo, userID)
	if err != nil {
		return false, err
	}
	return model.OnGenericTrial(user, s.now()), nil
}

// Now 当前时间，接口层计算订阅状态时使用
func (s *SubscriptionService) Now() time.Time {
	return s.now()
}

func (s *SubscriptionService) billable(userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByIDWithSubscriptions(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *SubscriptionService) publish(ctx context.Context, eventType string, sub *model.Subscription) {
	publish(ctx, s.publisher, s.logger, &pubsub.BillingEvent{
		Type:           eventType,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Name:           sub.Name,
		Plan:           sub.StripePlan,
		Quantity:       sub.Quantity,
		EndsAt:         sub.EndsAt,
		OccurredAt:     s.now().UTC(),
	})
}
