package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/billing_go_server/internal/api/middleware"
	"github.com/qs3c/billing_go_server/internal/model"
	"github.com/qs3c/billing_go_server/internal/model/dto"
	"github.com/qs3c/billing_go_server/internal/pkg/response"
	"github.com/qs3c/billing_go_server/internal/service"
)

type SubscriptionHandler struct {
	subService *service.SubscriptionService
}

func NewSubscriptionHandler(subService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subService: subService,
	}
}

// List 订阅列表，filter 取 active、on_trial、on_grace_period 等
// GET /api/v1/subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	subs, err := h.subService.List(userID, c.Query("filter"))
	if err != nil {
		billingError(c, err)
		return
	}

	now := h.subService.Now()
	items := make([]*dto.SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		items = append(items, dto.NewSubscriptionInfo(sub, now))
	}
	response.Success(c, items)
}

// Create 新建订阅
// POST /api/v1/subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subService.Create(c.Request.Context(), userID, &req)
	h.respond(c, "订阅成功", sub, err)
}

// Get 按名称获取订阅
// GET /api/v1/subscriptions/:name
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	sub, err := h.subService.Get(userID, c.Param("name"))
	h.respond(c, "success", sub, err)
}

// Swap 切换套餐
// PUT /api/v1/subscriptions/:name/plan
func (h *SubscriptionHandler) Swap(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SwapPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subService.Swap(c.Request.Context(), userID, c.Param("name"), &req)
	h.respond(c, "套餐已切换", sub, err)
}

// UpdateQuantity 直接设置数量
// PUT /api/v1/subscriptions/:name/quantity
func (h *SubscriptionHandler) UpdateQuantity(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subService.UpdateQuantity(c.Request.Context(), userID, c.Param("name"), &req)
	h.respond(c, "数量已更新", sub, err)
}

// Increment 增加数量，默认加 1
// POST /api/v1/subscriptions/:name/increment
func (h *SubscriptionHandler) Increment(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.UpdateQuantityRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subService.IncrementQuantity(c.Request.Context(), userID, c.Param("name"), &req)
	h.respond(c, "数量已更新", sub, err)
}

// Decrement 减少数量，默认减 1
// POST /api/v1/subscriptions/:name/decrement
func (h *SubscriptionHandler) Decrement(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.UpdateQuantityRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subService.DecrementQuantity(c.Request.Context(), userID, c.Param("name"), &req)
	h.respond(c, "数量已更新", sub, err)
}

// Cancel 取消订阅，now=true 时立即结束
// POST /api/v1/subscriptions/:name/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var (
		sub *model.Subscription
		err error
	)
	if c.Query("now") == "true" {
		sub, err = h.subService.CancelNow(c.Request.Context(), userID, c.Param("name"))
	} else {
		sub, err = h.subService.Cancel(c.Request.Context(), userID, c.Param("name"))
	}
	h.respond(c, "订阅已取消", sub, err)
}

// Resume 恢复宽限期内的订阅
// POST /api/v1/subscriptions/:name/resume
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	sub, err := h.subService.Resume(c.Request.Context(), userID, c.Param("name"))
	h.respond(c, "订阅已恢复", sub, err)
}

func (h *SubscriptionHandler) respond(c *gin.Context, message string, sub *model.Subscription, err error) {
	if err != nil {
		billingError(c, err)
		return
	}
	response.SuccessWithMessage(c, message, dto.NewSubscriptionInfo(sub, h.subService.Now()))
}
