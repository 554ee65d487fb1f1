package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/billing_go_server/internal/api/middleware"
	"github.com/qs3c/billing_go_server/internal/billing"
	"github.com/qs3c/billing_go_server/internal/model/dto"
	"github.com/qs3c/billing_go_server/internal/pkg/response"
	"github.com/qs3c/billing_go_server/internal/service"
)

type BillingHandler struct {
	customerService *service.CustomerService
}

func NewBillingHandler(customerService *service.CustomerService) *BillingHandler {
	return &BillingHandler{
		customerService: customerService,
	}
}

// Status 计费概况
// GET /api/v1/billing/status
func (h *BillingHandler) Status(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	status, err := h.customerService.Status(userID)
	if err != nil {
		billingError(c, err)
		return
	}
	response.Success(c, status)
}

// CreateCustomer 创建 Stripe 客户
// POST /api/v1/billing/customer
func (h *BillingHandler) CreateCustomer(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateCustomerRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if _, err := h.customerService.CreateAsCustomer(c.Request.Context(), userID, &req); err != nil {
		billingError(c, err)
		return
	}
	h.Status(c)
}

// UpdateCard 更新默认卡片
// PUT /api/v1/billing/card
func (h *BillingHandler) UpdateCard(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.UpdateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if _, err := h.customerService.UpdateCard(c.Request.Context(), userID, &req); err != nil {
		billingError(c, err)
		return
	}
	h.Status(c)
}

// ApplyCoupon 应用优惠券
// POST /api/v1/billing/coupon
func (h *BillingHandler) ApplyCoupon(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.customerService.ApplyCoupon(c.Request.Context(), userID, &req); err != nil {
		billingError(c, err)
		return
	}
	response.SuccessWithMessage(c, "优惠券已应用", nil)
}

// Invoices 账单列表
// GET /api/v1/billing/invoices
func (h *BillingHandler) Invoices(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	invoices, err := h.customerService.Invoices(c.Request.Context(), userID)
	if err != nil {
		billingError(c, err)
		return
	}

	items := make([]*dto.InvoiceInfo, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, toInvoiceInfo(inv))
	}
	response.Success(c, items)
}

// InvoiceFor 一次性账单
// POST /api/v1/billing/invoices
func (h *BillingHandler) InvoiceFor(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.InvoiceForRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	inv, err := h.customerService.InvoiceFor(c.Request.Context(), userID, &req)
	if err != nil {
		billingError(c, err)
		return
	}
	response.SuccessWithMessage(c, "账单已创建", toInvoiceInfo(inv))
}

// Refund 按账单退款，只能退自己的账单
// POST /api/v1/billing/refunds
func (h *BillingHandler) Refund(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	refund, err := h.customerService.Refund(c.Request.Context(), userID, &req)
	if err != nil {
		billingError(c, err)
		return
	}
	response.SuccessWithMessage(c, "退款已提交", &dto.RefundInfo{
		ID:        refund.ID,
		InvoiceID: req.InvoiceID,
		Amount:    refund.Amount,
		Status:    refund.Status,
	})
}

// Premium 只有订阅用户能访问，前面挂 middleware.Subscribed
// GET /api/v1/billing/premium
func (h *BillingHandler) Premium(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	response.Success(c, gin.H{"user_id": userID, "premium": true})
}

func toInvoiceInfo(inv *billing.Invoice) *dto.InvoiceInfo {
	return &dto.InvoiceInfo{
		ID:         inv.ID,
		Total:      inv.Total,
		Currency:   inv.Currency,
		Status:     inv.Status,
		PaymentID:  inv.PaymentID(),
		Refundable: inv.PaymentID() != "",
		Date:       inv.Created.Format(time.RFC3339),
	}
}
