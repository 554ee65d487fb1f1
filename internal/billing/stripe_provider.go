package billing

import (
	"context"
	"errors"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProvider 基于 stripe-go client.API 的实现。key 只存在于实例里，不写全局 stripe.Key
type StripeProvider struct {
	sc      *client.API
	account string
}

func NewStripeProvider(secret string) *StripeProvider {
	return &StripeProvider{sc: client.New(secret, nil)}
}

// NewStripeProviderWithBackends 测试或自定义 HTTP 客户端时使用
func NewStripeProviderWithBackends(secret string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{sc: client.New(secret, backends)}
}

func (p *StripeProvider) ForAccount(accountID string) Provider {
	if accountID == "" {
		return p
	}
	return &StripeProvider{sc: p.sc, account: accountID}
}

func (p *StripeProvider) prepare(ctx context.Context, params *stripe.Params) {
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	p.prepare(ctx, &params.Params)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Token != "" {
		params.AddExtra("source", req.Token)
	}

	c, err := p.sc.Customers.New(params)
	if err != nil {
		return nil, wrapError("create customer", err)
	}

	result := &Customer{ID: c.ID}
	if req.Token != "" {
		card, err := p.cardFromToken(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		result.Card = card
	}
	return result, nil
}

func (p *StripeProvider) UpdateCard(ctx context.Context, customerID, token string) (*Card, error) {
	if token == "" {
		return nil, ErrMissingCard
	}

	params := &stripe.CustomerParams{}
	p.prepare(ctx, &params.Params)
	params.AddExtra("source", token)
	if _, err := p.sc.Customers.Update(customerID, params); err != nil {
		return nil, wrapError("update card", err)
	}

	return p.cardFromToken(ctx, token)
}

func (p *StripeProvider) cardFromToken(ctx context.Context, token string) (*Card, error) {
	params := &stripe.TokenParams{}
	p.prepare(ctx, &params.Params)

	tok, err := p.sc.Tokens.Get(token, params)
	if err != nil {
		return nil, wrapError("retrieve token", err)
	}
	if tok.Card == nil {
		return &Card{}, nil
	}
	return &Card{Brand: string(tok.Card.Brand), LastFour: tok.Card.Last4}, nil
}

func (p *StripeProvider) ApplyCoupon(ctx context.Context, customerID, coupon string) error {
	params := &stripe.CustomerParams{}
	p.prepare(ctx, &params.Params)
	params.AddExtra("coupon", coupon)

	if _, err := p.sc.Customers.Update(customerID, params); err != nil {
		return wrapError("apply coupon", err)
	}
	return nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price:    stripe.String(req.Plan),
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
	}
	p.prepare(ctx, &params.Params)

	if req.TrialEnd != nil {
		params.TrialEnd = stripe.Int64(req.TrialEnd.Unix())
	}
	if req.Coupon != "" {
		params.AddExtra("discounts[0][coupon]", req.Coupon)
	}
	if req.BillingCycleAnchor != nil {
		params.BillingCycleAnchor = stripe.Int64(req.BillingCycleAnchor.Unix())
		params.ProrationBehavior = stripe.String("none")
	}
	if req.ApplicationFeePercent != nil {
		params.ApplicationFeePercent = req.ApplicationFeePercent
	}
	if len(req.TaxRates) > 0 {
		params.DefaultTaxRates = stripe.StringSlice(req.TaxRates)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := p.sc.Subscriptions.New(params)
	if err != nil {
		return nil, wrapError("create subscription", err)
	}
	return toRemote(sub), nil
}

func (p *StripeProvider) SwapPlan(ctx context.Context, req SwapPlanRequest) (*RemoteSubscription, error) {
	itemID, err := p.firstItemID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:       stripe.String(itemID),
				Price:    stripe.String(req.Plan),
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
		ProrationBehavior: stripe.String(prorationBehavior(req.Prorate)),
	}
	p.prepare(ctx, &params.Params)
	setTrialEnd(params, req.TrialEnd)
	if req.Coupon != "" {
		params.AddExtra("discounts[0][coupon]", req.Coupon)
	}

	sub, err := p.sc.Subscriptions.Update(req.SubscriptionID, params)
	if err != nil {
		return nil, wrapError("swap plan", err)
	}
	return toRemote(sub), nil
}

func (p *StripeProvider) UpdateQuantity(ctx context.Context, subscriptionID string, quantity int, prorate bool) (*RemoteSubscription, error) {
	itemID, err := p.firstItemID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:       stripe.String(itemID),
				Quantity: stripe.Int64(int64(quantity)),
			},
		},
		ProrationBehavior: stripe.String(prorationBehavior(prorate)),
	}
	p.prepare(ctx, &params.Params)

	sub, err := p.sc.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, wrapError("update quantity", err)
	}
	return toRemote(sub), nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*RemoteSubscription, error) {
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		p.prepare(ctx, &params.Params)

		sub, err := p.sc.Subscriptions.Update(subscriptionID, params)
		if err != nil {
			return nil, wrapError("cancel subscription", err)
		}
		return toRemote(sub), nil
	}

	params := &stripe.SubscriptionCancelParams{}
	p.prepare(ctx, &params.Params)

	sub, err := p.sc.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, wrapError("cancel subscription", err)
	}
	return toRemote(sub), nil
}

func (p *StripeProvider) ResumeSubscription(ctx context.Context, req ResumeRequest) (*RemoteSubscription, error) {
	itemID, err := p.firstItemID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(itemID),
				Price: stripe.String(req.Plan),
			},
		},
	}
	p.prepare(ctx, &params.Params)
	setTrialEnd(params, req.TrialEnd)

	sub, err := p.sc.Subscriptions.Update(req.SubscriptionID, params)
	if err != nil {
		return nil, wrapError("resume subscription", err)
	}
	return toRemote(sub), nil
}

// InvoiceFor 先挂一条账单项，再开票并立即扣款
func (p *StripeProvider) InvoiceFor(ctx context.Context, customerID, description string, amount int64, currency string) (*Invoice, error) {
	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
	}
	p.prepare(ctx, &itemParams.Params)
	if _, err := p.sc.InvoiceItems.New(itemParams); err != nil {
		return nil, wrapError("create invoice item", err)
	}

	invParams := &stripe.InvoiceParams{
		Customer:                    stripe.String(customerID),
		PendingInvoiceItemsBehavior: stripe.String("include"),
	}
	p.prepare(ctx, &invParams.Params)
	inv, err := p.sc.Invoices.New(invParams)
	if err != nil {
		return nil, wrapError("create invoice", err)
	}

	payParams := &stripe.InvoicePayParams{}
	p.prepare(ctx, &payParams.Params)
	paid, err := p.sc.Invoices.Pay(inv.ID, payParams)
	if err != nil {
		return nil, wrapError("pay invoice", err)
	}
	return toInvoice(paid), nil
}

// Invoice 展开 payments 才能拿到付款引用
func (p *StripeProvider) Invoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	params := &stripe.InvoiceParams{}
	p.prepare(ctx, &params.Params)
	params.AddExpand("payments")

	inv, err := p.sc.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, wrapError("retrieve invoice", err)
	}
	return toInvoice(inv), nil
}

func (p *StripeProvider) Invoices(ctx context.Context, customerID string) ([]*Invoice, error) {
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	params.AddExpand("data.payments")

	var invoices []*Invoice
	iter := p.sc.Invoices.List(params)
	for iter.Next() {
		invoices = append(invoices, toInvoice(iter.Invoice()))
	}
	if err := iter.Err(); err != nil {
		return nil, wrapError("list invoices", err)
	}
	return invoices, nil
}

func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{}
	p.prepare(ctx, &params.Params)
	switch {
	case req.PaymentIntentID != "":
		params.PaymentIntent = stripe.String(req.PaymentIntentID)
	case req.ChargeID != "":
		params.Charge = stripe.String(req.ChargeID)
	default:
		return nil, ErrNoPayment
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	r, err := p.sc.Refunds.New(params)
	if err != nil {
		return nil, wrapError("refund", err)
	}
	return &Refund{ID: r.ID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func (p *StripeProvider) firstItemID(ctx context.Context, subscriptionID string) (string, error) {
	params := &stripe.SubscriptionParams{}
	p.prepare(ctx, &params.Params)

	sub, err := p.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return "", wrapError("retrieve subscription", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return "", ErrNoSubscriptionItem
	}
	return sub.Items.Data[0].ID, nil
}

func setTrialEnd(params *stripe.SubscriptionParams, trialEnd *time.Time) {
	if trialEnd != nil {
		params.TrialEnd = stripe.Int64(trialEnd.Unix())
		return
	}
	params.TrialEndNow = stripe.Bool(true)
}

func prorationBehavior(prorate bool) string {
	if prorate {
		return "create_prorations"
	}
	return "none"
}

func toRemote(sub *stripe.Subscription) *RemoteSubscription {
	remote := &RemoteSubscription{
		ID:         sub.ID,
		TrialEnd:   unixPtr(sub.TrialEnd),
		CancelAt:   unixPtr(sub.CancelAt),
		CanceledAt: unixPtr(sub.CanceledAt),
		EndedAt:    unixPtr(sub.EndedAt),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		remote.Quantity = int(item.Quantity)
		if item.Price != nil {
			remote.Plan = item.Price.ID
		}
	}
	return remote
}

func toInvoice(inv *stripe.Invoice) *Invoice {
	result := &Invoice{
		ID:       inv.ID,
		Total:    inv.Total,
		Currency: string(inv.Currency),
		Status:   string(inv.Status),
		Created:  time.Unix(inv.Created, 0).UTC(),
	}
	if inv.Customer != nil {
		result.CustomerID = inv.Customer.ID
	}
	if inv.Payments == nil {
		return result
	}
	for _, ip := range inv.Payments.Data {
		if ip.Status != "paid" || ip.Payment == nil {
			continue
		}
		if ip.Payment.PaymentIntent != nil {
			result.PaymentIntentID = ip.Payment.PaymentIntent.ID
		}
		if ip.Payment.Charge != nil {
			result.ChargeID = ip.Payment.Charge.ID
		}
		break
	}
	return result
}

func wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &ProviderError{
			Op:         op,
			Code:       string(se.Code),
			Message:    se.Msg,
			StatusCode: se.HTTPStatusCode,
			Err:        err,
		}
	}
	return &ProviderError{Op: op, Message: err.Error(), Err: err}
}
