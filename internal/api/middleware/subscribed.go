package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/billing_go_server/internal/pkg/response"
	"github.com/qs3c/billing_go_server/internal/service"
)

// Subscribed 订阅检查中间件，plan 为空时只看名称
func Subscribed(subService *service.SubscriptionService, name, plan string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		subscribed, err := subService.Subscribed(userID, name, plan)
		if err != nil {
			response.ServerError(c, "订阅检查失败")
			c.Abort()
			return
		}

		if !subscribed {
			response.SubscriptionRequiredError(c, "")
			c.Abort()
			return
		}

		c.Next()
	}
}
