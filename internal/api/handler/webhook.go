package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/billing_go_server/internal/billing"
	"github.com/qs3c/billing_go_server/internal/pkg/response"
	"github.com/qs3c/billing_go_server/internal/service"
)

const maxWebhookBodyBytes = 1 << 20

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// Stripe 回调入口。Stripe 按 HTTP 状态码决定是否重试，所以这里不走统一的 200 错误码
// POST /api/v1/webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeParamError, "读取请求体失败")
		return
	}

	err = h.webhookService.Handle(c.Request.Context(), payload, c.GetHeader(billing.SignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, billing.ErrInvalidSignature):
		response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeAuthFailed, err.Error())
	case errors.Is(err, billing.ErrMalformedPayload):
		response.ErrorWithStatus(c, http.StatusBadRequest, response.CodeParamError, err.Error())
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, response.CodeServerError, "")
	}
}
