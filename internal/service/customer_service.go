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
	ErrNotCustomer     = errors.New("用户还不是 Stripe 客户")
	ErrAlreadyCustomer = errors.New("用户已经是 Stripe 客户")
	ErrInvoiceNotFound = errors.New("账单不存在")
	ErrInvoiceNotPaid  = errors.New("账单尚未支付，无法退款")
)

// EventPublisher 计费事件发布，未配置 redis 时可以为 nil
type EventPublisher interface {
	Publish(ctx context.Context, event *pubsub.BillingEvent) error
}

// CustomerService 客户与卡片相关的透传操作，本地只保存 stripe_id 和卡片展示字段
type CustomerService struct {
	userRepo  *repository.UserRepository
	provider  billing.Provider
	publisher EventPublisher
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewCustomerService(
	userRepo *repository.UserRepository,
	provider billing.Provider,
	publisher EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		userRepo:  userRepo,
		provider:  provider,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Status 用户计费概况
func (s *CustomerService) Status(userID int64) (*dto.BillingStatus, error) {
	user, err := getUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	status := &dto.BillingStatus{
		StripeID:       user.BillingCustomerID(),
		TrialEndsAt:    user.TrialEndsAt,
		OnGenericTrial: model.OnGenericTrial(user, s.now()),
	}
	if user.CardBrand != nil {
		status.CardBrand = *user.CardBrand
	}
	if user.CardLastFour != nil {
		status.CardLastFour = *user.CardLastFour
	}
	return status, nil
}

// CreateAsCustomer 在 Stripe 创建 customer 并回写 stripe_id
func (s *CustomerService) CreateAsCustomer(ctx context.Context, userID int64, req *dto.CreateCustomerRequest) (*model.User, error) {
	user, err := getUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	if model.HasStripeID(user) {
		return nil, ErrAlreadyCustomer
	}

	provider := connected(s.provider, s.cfg)
	if err := createCustomer(ctx, s.userRepo, provider, user, req.PaymentToken, req.Metadata); err != nil {
		return nil, err
	}

	s.logger.Info("stripe customer created",
		zap.Int64("user_id", user.ID),
		zap.String("stripe_id", user.BillingCustomerID()),
	)
	publish(ctx, s.publisher, s.logger, &pubsub.BillingEvent{
		Type:   pubsub.EventCustomerCreated,
		UserID: user.ID,
	})
	return user, nil
}

// UpdateCard 更新默认卡片，并刷新本地卡片展示字段
func (s *CustomerService) UpdateCard(ctx context.Context, userID int64, req *dto.UpdateCardRequest) (*model.User, error) {
	user, err := s.customer(userID)
	if err != nil {
		return nil, err
	}

	provider := connected(s.provider, s.cfg)
	if err := updateCard(ctx, s.userRepo, provider, user, req.PaymentToken); err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.logger, &pubsub.BillingEvent{
		Type:   pubsub.EventCardUpdated,
		UserID: user.ID,
	})
	return user, nil
}

// ApplyCoupon 给 customer 挂优惠券，本地无变化
func (s *CustomerService) ApplyCoupon(ctx context.Context, userID int64, req *dto.ApplyCouponRequest) error {
	user, err := s.customer(userID)
	if err != nil {
		return err
	}
	return connected(s.provider, s.cfg).ApplyCoupon(ctx, user.BillingCustomerID(), req.Coupon)
}

// InvoiceFor 一次性账单，币种未指定时用配置的默认币种
func (s *CustomerService) InvoiceFor(ctx context.Context, userID int64, req *dto.InvoiceForRequest) (*billing.Invoice, error) {
	user, err := s.customer(userID)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Stripe.CurrencyOrDefault()
	}

	inv, err := connected(s.provider, s.cfg).InvoiceFor(ctx, user.BillingCustomerID(), req.Description, req.Amount, currency)
	if err != nil {
		return nil, err
	}

	s.logger.Info("one-off invoice created",
		zap.Int64("user_id", user.ID),
		zap.String("invoice_id", inv.ID),
		zap.Int64("amount", req.Amount),
	)
	return inv, nil
}

func (s *CustomerService) Invoices(ctx context.Context, userID int64) ([]*billing.Invoice, error) {
	user, err := s.customer(userID)
	if err != nil {
		return nil, err
	}
	return connected(s.provider, s.cfg).Invoices(ctx, user.BillingCustomerID())
}

// Refund 退还用户自己某张账单的付款。别人的账单和不存在的账单一样返回 ErrInvoiceNotFound
func (s *CustomerService) Refund(ctx context.Context, userID int64, req *dto.RefundRequest) (*billing.Refund, error) {
	user, err := s.customer(userID)
	if err != nil {
		return nil, err
	}

	provider := connected(s.provider, s.cfg)
	inv, err := provider.Invoice(ctx, req.InvoiceID)
	if err != nil {
		if billing.IsNotFound(err) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if inv.CustomerID != user.BillingCustomerID() {
		s.logger.Warn("refund rejected for foreign invoice",
			zap.Int64("user_id", user.ID),
			zap.String("invoice_id", inv.ID),
		)
		return nil, ErrInvoiceNotFound
	}
	if inv.PaymentID() == "" {
		return nil, ErrInvoiceNotPaid
	}

	refund, err := provider.Refund(ctx, billing.RefundRequest{
		ChargeID:        inv.ChargeID,
		PaymentIntentID: inv.PaymentIntentID,
		Amount:          req.Amount,
		Metadata:        map[string]string{"invoice_id": inv.ID},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund issued",
		zap.Int64("user_id", user.ID),
		zap.String("invoice_id", inv.ID),
		zap.String("payment_id", inv.PaymentID()),
		zap.Int64("amount", refund.Amount),
	)
	return refund, nil
}

// customer 获取已经是 Stripe 客户的用户
func (s *CustomerService) customer(userID int64) (*model.User, error) {
	user, err := getUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	if !model.HasStripeID(user) {
		return nil, ErrNotCustomer
	}
	return user, nil
}

func getUser(userRepo *repository.UserRepository, userID int64) (*model.User, error) {
	user, err := userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// createCustomer 远端创建成功后写一次本地，user 同步更新
func createCustomer(ctx context.Context, userRepo *repository.UserRepository, provider billing.Provider, user *model.User, token string, metadata map[string]string) error {
	c, err := provider.CreateCustomer(ctx, billing.CreateCustomerRequest{
		Email:    user.Email,
		Name:     user.Name,
		Token:    token,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}

	fields := map[string]interface{}{"stripe_id": c.ID}
	if c.Card != nil {
		fields["card_brand"] = c.Card.Brand
		fields["card_last_four"] = c.Card.LastFour
	}
	if err := userRepo.UpdateFields(user.ID, fields); err != nil {
		return err
	}

	user.StripeID = &c.ID
	if c.Card != nil {
		applyCard(user, c.Card)
	}
	return nil
}

func updateCard(ctx context.Context, userRepo *repository.UserRepository, provider billing.Provider, user *model.User, token string) error {
	card, err := provider.UpdateCard(ctx, user.BillingCustomerID(), token)
	if err != nil {
		return err
	}

	if err := userRepo.UpdateFields(user.ID, map[string]interface{}{
		"card_brand":     card.Brand,
		"card_last_four": card.LastFour,
	}); err != nil {
		return err
	}

	applyCard(user, card)
	return nil
}

func applyCard(user *model.User, card *billing.Card) {
	brand, lastFour := card.Brand, card.LastFour
	user.CardBrand = &brand
	user.CardLastFour = &lastFour
}

// connected 子账户只来自服务端配置，未配置时就是平台账户
func connected(provider billing.Provider, cfg *config.Config) billing.Provider {
	return provider.ForAccount(cfg.Stripe.ConnectAccount)
}

// publish 事件发布失败只记日志，不影响主流程
func publish(ctx context.Context, publisher EventPublisher, logger *zap.Logger, event *pubsub.BillingEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish billing event",
			zap.String("type", event.Type),
			zap.Int64("user_id", event.UserID),
			zap.Error(err),
		)
	}
}
