package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrInvalidSignature   = errors.New("webhook 签名校验失败")
	ErrMissingCard        = errors.New("缺少卡片 token")
	ErrNoSubscriptionItem = errors.New("远端订阅没有订阅项")
	ErrNoPayment          = errors.New("账单没有可退款的付款")
)

// Provider Stripe 边界，一个方法对应一次远端调用。所有 id 都是不透明字符串
type Provider interface {
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	UpdateCard(ctx context.Context, customerID, token string) (*Card, error)
	ApplyCoupon(ctx context.Context, customerID, coupon string) error
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*RemoteSubscription, error)
	SwapPlan(ctx context.Context, req SwapPlanRequest) (*RemoteSubscription, error)
	UpdateQuantity(ctx context.Context, subscriptionID string, quantity int, prorate bool) (*RemoteSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*RemoteSubscription, error)
	ResumeSubscription(ctx context.Context, req ResumeRequest) (*RemoteSubscription, error)
	InvoiceFor(ctx context.Context, customerID, description string, amount int64, currency string) (*Invoice, error)
	Invoice(ctx context.Context, invoiceID string) (*Invoice, error)
	Invoices(ctx context.Context, customerID string) ([]*Invoice, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	// ForAccount 返回作用于 Connect 子账户的 Provider，accountID 为空时返回自身
	ForAccount(accountID string) Provider
}

type CreateCustomerRequest struct {
	Email    string
	Name     string
	Token    string // 可为空
	Metadata map[string]string
}

type Customer struct {
	ID   string
	Card *Card // 传了 token 时才有
}

type Card struct {
	Brand    string
	LastFour string
}

// CreateSubscriptionRequest TrialEnd 为空表示不试用
type CreateSubscriptionRequest struct {
	CustomerID            string
	Plan                  string
	Quantity              int
	TrialEnd              *time.Time
	Coupon                string
	BillingCycleAnchor    *time.Time
	ApplicationFeePercent *float64
	TaxRates              []string
	Metadata              map[string]string
}

// SwapPlanRequest TrialEnd 为空时试用立即结束
type SwapPlanRequest struct {
	SubscriptionID string
	Plan           string
	Quantity       int
	Prorate        bool
	TrialEnd       *time.Time
	Coupon         string
}

// ResumeRequest TrialEnd 为空时试用立即结束
type ResumeRequest struct {
	SubscriptionID string
	Plan           string
	TrialEnd       *time.Time
}

// RemoteSubscription 远端订阅中本地关心的字段
type RemoteSubscription struct {
	ID         string
	Plan       string
	Quantity   int
	TrialEnd   *time.Time
	CancelAt   *time.Time
	CanceledAt *time.Time
	EndedAt    *time.Time
}

// Invoice ChargeID 和 PaymentIntentID 来自已支付的那笔 invoice payment，未支付时都为空
type Invoice struct {
	ID              string
	CustomerID      string
	Total           int64
	Currency        string
	Status          string
	ChargeID        string
	PaymentIntentID string
	Created         time.Time
}

// PaymentID 可退款的付款引用，优先 payment intent
func (i *Invoice) PaymentID() string {
	if i.PaymentIntentID != "" {
		return i.PaymentIntentID
	}
	return i.ChargeID
}

// RefundRequest ChargeID 和 PaymentIntentID 二选一，Amount 为空时全额退款
type RefundRequest struct {
	ChargeID        string
	PaymentIntentID string
	Amount          *int64
	Metadata        map[string]string
}

type Refund struct {
	ID     string
	Amount int64
	Status string
}

// ProviderError 远端调用失败，保留 Stripe 的错误码和消息
type ProviderError struct {
	Op         string
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("billing: %s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("billing: %s: %s", e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound 远端资源不存在
func IsNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound
}

func unixPtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

var (
	_ Provider = (*StripeProvider)(nil)
	_ Provider = (*MockProvider)(nil)
)
