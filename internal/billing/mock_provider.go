package billing

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// MockProvider 内存实现，记录调用并可注入错误，测试用
type MockProvider struct {
	mu sync.Mutex

	Account string
	Calls   []string

	// 注入的错误，按方法名匹配，例如 "CreateSubscription"
	Errors map[string]error

	// CancelAt 非空时作为到期取消的返回值
	CancelAt *time.Time

	CardBrand    string
	CardLastFour string

	Customers     map[string]*CreateCustomerRequest
	Coupons       map[string]string
	Subscriptions map[string]*RemoteSubscription
	InvoiceList   map[string][]*Invoice
	Refunds       []*Refund

	LastCreate  *CreateSubscriptionRequest
	LastSwap    *SwapPlanRequest
	LastResume  *ResumeRequest
	LastProrate *bool
	LastRefund  *RefundRequest

	seq int
	now func() time.Time
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		Errors:        make(map[string]error),
		CardBrand:     "Visa",
		CardLastFour:  "4242",
		Customers:     make(map[string]*CreateCustomerRequest),
		Coupons:       make(map[string]string),
		Subscriptions: make(map[string]*RemoteSubscription),
		InvoiceList:   make(map[string][]*Invoice),
		now:           time.Now,
	}
}

// FailOn 让指定方法返回 err
func (m *MockProvider) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method] = err
}

func (m *MockProvider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *MockProvider) record(method string) error {
	m.Calls = append(m.Calls, method)
	return m.Errors[method]
}

func (m *MockProvider) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_mock_%d", prefix, m.seq)
}

func (m *MockProvider) card() *Card {
	return &Card{Brand: m.CardBrand, LastFour: m.CardLastFour}
}

// ForAccount 返回共享状态的同一个 mock，只记录子账户
func (m *MockProvider) ForAccount(accountID string) Provider {
	if accountID == "" {
		return m
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Account = accountID
	return m
}

func (m *MockProvider) CreateCustomer(_ context.Context, req CreateCustomerRequest) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateCustomer"); err != nil {
		return nil, err
	}

	id := m.nextID("cus")
	r := req
	m.Customers[id] = &r

	c := &Customer{ID: id}
	if req.Token != "" {
		c.Card = m.card()
	}
	return c, nil
}

func (m *MockProvider) UpdateCard(_ context.Context, customerID, token string) (*Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateCard"); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrMissingCard
	}
	return m.card(), nil
}

func (m *MockProvider) ApplyCoupon(_ context.Context, customerID, coupon string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ApplyCoupon"); err != nil {
		return err
	}
	m.Coupons[customerID] = coupon
	return nil
}

func (m *MockProvider) CreateSubscription(_ context.Context, req CreateSubscriptionRequest) (*RemoteSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateSubscription"); err != nil {
		return nil, err
	}

	r := req
	m.LastCreate = &r
	sub := &RemoteSubscription{
		ID:       m.nextID("sub"),
		Plan:     req.Plan,
		Quantity: req.Quantity,
		TrialEnd: req.TrialEnd,
	}
	m.Subscriptions[sub.ID] = sub
	return copyRemote(sub), nil
}

func (m *MockProvider) SwapPlan(_ context.Context, req SwapPlanRequest) (*RemoteSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SwapPlan"); err != nil {
		return nil, err
	}

	r := req
	m.LastSwap = &r
	sub := m.lookup(req.SubscriptionID)
	sub.Plan = req.Plan
	sub.Quantity = req.Quantity
	sub.TrialEnd = req.TrialEnd
	return copyRemote(sub), nil
}

func (m *MockProvider) UpdateQuantity(_ context.Context, subscriptionID string, quantity int, prorate bool) (*RemoteSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateQuantity"); err != nil {
		return nil, err
	}

	m.LastProrate = &prorate
	sub := m.lookup(subscriptionID)
	sub.Quantity = quantity
	return copyRemote(sub), nil
}

func (m *MockProvider) CancelSubscription(_ context.Context, subscriptionID string, atPeriodEnd bool) (*RemoteSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CancelSubscription"); err != nil {
		return nil, err
	}

	sub := m.lookup(subscriptionID)
	now := m.now().UTC()
	sub.CanceledAt = &now
	if atPeriodEnd {
		sub.CancelAt = m.CancelAt
	} else {
		sub.CancelAt = nil
		sub.EndedAt = &now
	}
	return copyRemote(sub), nil
}

func (m *MockProvider) ResumeSubscription(_ context.Context, req ResumeRequest) (*RemoteSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ResumeSubscription"); err != nil {
		return nil, err
	}

	r := req
	m.LastResume = &r
	sub := m.lookup(req.SubscriptionID)
	sub.Plan = req.Plan
	sub.TrialEnd = req.TrialEnd
	sub.CancelAt = nil
	sub.CanceledAt = nil
	return copyRemote(sub), nil
}

func (m *MockProvider) InvoiceFor(_ context.Context, customerID, description string, amount int64, currency string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("InvoiceFor"); err != nil {
		return nil, err
	}

	inv := &Invoice{
		ID:         m.nextID("in"),
		CustomerID: customerID,
		Total:      amount,
		Currency:   currency,
		Status:     "paid",
		ChargeID:   m.nextID("ch"),
		Created:    m.now().UTC(),
	}
	m.addInvoice(inv)
	return inv, nil
}

// AddInvoice 直接放入一张账单，可以属于任意 customer
func (m *MockProvider) AddInvoice(inv *Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addInvoice(inv)
}

// addInvoice 最新的排在前面，与 Stripe 列表顺序一致
func (m *MockProvider) addInvoice(inv *Invoice) {
	m.InvoiceList[inv.CustomerID] = append([]*Invoice{inv}, m.InvoiceList[inv.CustomerID]...)
}

func (m *MockProvider) Invoice(_ context.Context, invoiceID string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Invoice"); err != nil {
		return nil, err
	}

	for _, invoices := range m.InvoiceList {
		for _, inv := range invoices {
			if inv.ID == invoiceID {
				c := *inv
				return &c, nil
			}
		}
	}
	return nil, &ProviderError{
		Op:         "retrieve invoice",
		Code:       "resource_missing",
		Message:    "No such invoice: " + invoiceID,
		StatusCode: http.StatusNotFound,
	}
}

func (m *MockProvider) Invoices(_ context.Context, customerID string) ([]*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Invoices"); err != nil {
		return nil, err
	}
	return append([]*Invoice(nil), m.InvoiceList[customerID]...), nil
}

func (m *MockProvider) Refund(_ context.Context, req RefundRequest) (*Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Refund"); err != nil {
		return nil, err
	}
	if req.ChargeID == "" && req.PaymentIntentID == "" {
		return nil, ErrNoPayment
	}

	r := req
	m.LastRefund = &r
	refund := &Refund{ID: m.nextID("re"), Status: "succeeded"}
	if req.Amount != nil {
		refund.Amount = *req.Amount
	}
	m.Refunds = append(m.Refunds, refund)
	return refund, nil
}

// lookup 未知 id 时按需补一条，方便直接用 fixture 创建的本地订阅
func (m *MockProvider) lookup(id string) *RemoteSubscription {
	sub, ok := m.Subscriptions[id]
	if !ok {
		sub = &RemoteSubscription{ID: id, Quantity: 1}
		m.Subscriptions[id] = sub
	}
	return sub
}

func copyRemote(sub *RemoteSubscription) *RemoteSubscription {
	c := *sub
	return &c
}
