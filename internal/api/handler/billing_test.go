package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/billing_go_server/internal/billing"
	"github.com/qs3c/billing_go_server/internal/model/dto"
	"github.com/qs3c/billing_go_server/internal/pkg/response"
	"github.com/qs3c/billing_go_server/internal/testutil"
)

func billingRouter(handler *BillingHandler, userID int64) *gin.Engine {
	router := gin.New()
	router.Use(mockAuth(userID))
	router.GET("/billing/status", handler.Status)
	router.POST("/billing/customer", handler.CreateCustomer)
	router.PUT("/billing/card", handler.UpdateCard)
	router.POST("/billing/coupon", handler.ApplyCoupon)
	router.GET("/billing/invoices", handler.Invoices)
	router.POST("/billing/invoices", handler.InvoiceFor)
	router.POST("/billing/refunds", handler.Refund)
	return router
}

func TestBillingHandler_CreateCustomer(t *testing.T) {
	_, handler, ctx, cleanup := setupBillingHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB)
	router := billingRouter(handler, user.ID)

	w := performRequest(router, "POST", "/billing/customer", dto.CreateCustomerRequest{PaymentToken: "tok_visa"})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	assert.NotEmpty(t, data["stripe_id"])
	assert.Equal(t, "Visa", data["card_brand"])
	assert.Equal(t, "4242", data["card_last_four"])

	// 已经是客户
	w = performRequest(router, "POST", "/billing/customer", nil)
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeDuplicateAction, resp.Code)
}

func TestBillingHandler_NotCustomer(t *testing.T) {
	_, handler, ctx, cleanup := setupBillingHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB)
	router := billingRouter(handler, user.ID)

	tests := []struct {
		method string
		path   string
		body   interface{}
	}{
		{"PUT", "/billing/card", dto.UpdateCardRequest{PaymentToken: "tok_visa"}},
		{"POST", "/billing/coupon", dto.ApplyCouponRequest{Coupon: "OFF10"}},
		{"GET", "/billing/invoices", nil},
		{"POST", "/billing/invoices", dto.InvoiceForRequest{Description: "setup", Amount: 100}},
		{"POST", "/billing/refunds", dto.RefundRequest{InvoiceID: "in_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := performRequest(router, tt.method, tt.path, tt.body)
			resp := parseResponse(t, w)
			assert.Equal(t, response.CodeParamError, resp.Code)
		})
	}
	assert.Empty(t, ctx.Provider.Calls)
}

func TestBillingHandler_InvoicesAndRefund(t *testing.T) {
	_, handler, ctx, cleanup := setupBillingHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB, testutil.WithStripeID("cus_billing"))
	router := billingRouter(handler, user.ID)

	w := performRequest(router, "POST", "/billing/invoices", dto.InvoiceForRequest{Description: "setup fee", Amount: 1500})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	invoice := dataMap(t, resp)
	assert.Equal(t, float64(1500), invoice["total"])
	assert.Equal(t, "eur", invoice["currency"])
	assert.Equal(t, true, invoice["refundable"])
	assert.NotEmpty(t, invoice["payment_id"])

	w = performRequest(router, "GET", "/billing/invoices", nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	invoiceID := items[0].(map[string]interface{})["id"].(string)

	amount := int64(500)
	w = performRequest(router, "POST", "/billing/refunds", dto.RefundRequest{InvoiceID: invoiceID, Amount: &amount})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	refund := dataMap(t, resp)
	assert.Equal(t, float64(500), refund["amount"])
	assert.Equal(t, invoiceID, refund["invoice_id"])
	assert.Equal(t, invoice["payment_id"], ctx.Provider.LastRefund.ChargeID)
}

// 只能退自己账单的付款，请求里带的 charge 和子账户都不起作用
func TestBillingHandler_Refund_ForeignInvoice(t *testing.T) {
	_, handler, ctx, cleanup := setupBillingHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB, testutil.WithStripeID("cus_attacker"))
	router := billingRouter(handler, user.ID)
	ctx.Provider.AddInvoice(&billing.Invoice{
		ID:         "in_victim",
		CustomerID: "cus_victim",
		Total:      9900,
		Status:     "paid",
		ChargeID:   "ch_victim",
	})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"foreign invoice", map[string]interface{}{"invoice_id": "in_victim", "account": "acct_any_connected"}},
		{"unknown invoice", map[string]interface{}{"invoice_id": "in_missing"}},
		{"charge id only", map[string]interface{}{"charge_id": "ch_victim"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(router, "POST", "/billing/refunds", tt.body)
			resp := parseResponse(t, w)
			assert.NotEqual(t, response.CodeSuccess, resp.Code)
		})
	}

	w := performRequest(router, "POST", "/billing/refunds", map[string]interface{}{"invoice_id": "in_victim"})
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)

	assert.Equal(t, 0, ctx.Provider.CallCount("Refund"))
	assert.Empty(t, ctx.Provider.Account)
}

func TestBillingHandler_Refund_UnpaidInvoice(t *testing.T) {
	_, handler, ctx, cleanup := setupBillingHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB, testutil.WithStripeID("cus_open"))
	router := billingRouter(handler, user.ID)
	ctx.Provider.AddInvoice(&billing.Invoice{ID: "in_open", CustomerID: "cus_open", Status: "open"})

	w := performRequest(router, "GET", "/billing/invoices", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	items := resp.Data.([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, false, items[0].(map[string]interface{})["refundable"])

	w = performRequest(router, "POST", "/billing/refunds", dto.RefundRequest{InvoiceID: "in_open"})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
	assert.Equal(t, 0, ctx.Provider.CallCount("Refund"))
}

func TestBillingHandler_InvoiceFor_InvalidAmount(t *testing.T) {
	_, handler, ctx, cleanup := setupBillingHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB, testutil.WithStripeID("cus_amount"))
	router := billingRouter(handler, user.ID)

	w := performRequest(router, "POST", "/billing/invoices", map[string]interface{}{"description": "free", "amount": 0})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
	assert.Equal(t, 0, ctx.Provider.CallCount("InvoiceFor"))
}

func TestBillingHandler_ApplyCouponAndCard(t *testing.T) {
	_, handler, ctx, cleanup := setupBillingHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB, testutil.WithStripeID("cus_coupon"))
	router := billingRouter(handler, user.ID)

	w := performRequest(router, "POST", "/billing/coupon", dto.ApplyCouponRequest{Coupon: "OFF10"})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "OFF10", ctx.Provider.Coupons["cus_coupon"])

	ctx.Provider.CardLastFour = "1881"
	w = performRequest(router, "PUT", "/billing/card", dto.UpdateCardRequest{PaymentToken: "tok_visa"})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "1881", dataMap(t, resp)["card_last_four"])
}

func TestBillingHandler_Status_UserNotFound(t *testing.T) {
	_, handler, _, cleanup := setupBillingHandlers(t)
	defer cleanup()

	router := billingRouter(handler, 12345)

	w := performRequest(router, "GET", "/billing/status", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}
