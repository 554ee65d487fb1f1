package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/billing_go_server/internal/billing"
	"github.com/qs3c/billing_go_server/internal/pkg/response"
	"github.com/qs3c/billing_go_server/internal/repository"
	"github.com/qs3c/billing_go_server/internal/service"
)

// billingError 把计费相关的错误映射为响应码
func billingError(c *gin.Context, err error) {
	var pe *billing.ProviderError
	switch {
	case errors.As(err, &pe):
		response.PaymentError(c, pe.Message)
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound),
		errors.Is(err, service.ErrInvoiceNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrNotOnGracePeriod),
		errors.Is(err, service.ErrNotCustomer),
		errors.Is(err, repository.ErrUnknownScope),
		errors.Is(err, service.ErrInvoiceNotPaid),
		errors.Is(err, billing.ErrMissingCard),
		errors.Is(err, billing.ErrNoPayment):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrAlreadyCustomer):
		response.DuplicateError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}

// bindOptionalJSON 请求体可以为空
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
